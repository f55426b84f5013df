package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
)

func testIndex() *Index {
	return NewIndex([]domain.TicketOffering{
		{ID: "of-1", DateSessionID: "ds-2025-07-01", TypeCode: "GA", UnitPrice: 5000, Label: "General"},
		{ID: "of-2", DateSessionID: "ds-2025-07-01", TypeCode: "VIP", UnitPrice: 12000, Label: "VIP"},
		{ID: "", DateSessionID: "ds-2025-07-02", TypeCode: "GA", UnitPrice: 5500, Label: "General day 2"},
	})
}

func TestResolveDirect(t *testing.T) {
	ix := testIndex()

	r, ok := ix.Resolve("tt-of-2")
	require.True(t, ok)
	assert.Equal(t, "ds-2025-07-01", r.DateSessionID)
	assert.Equal(t, "VIP", r.TypeCode)
	assert.Equal(t, int64(12000), r.UnitPrice)
}

func TestResolveComposite(t *testing.T) {
	ix := testIndex()

	// Session id contains the separator; parsing must strip from the end.
	r, ok := ix.Resolve("gen-ds-2025-07-02-GA-0")
	require.True(t, ok)
	assert.Equal(t, "ds-2025-07-02", r.DateSessionID)
	assert.Equal(t, "GA", r.TypeCode)
	assert.Equal(t, int64(5500), r.UnitPrice)
}

func TestResolveIdempotent(t *testing.T) {
	ix := testIndex()

	first, ok1 := ix.Resolve("gen-ds-2025-07-01-VIP-3")
	second, ok2 := ix.Resolve("gen-ds-2025-07-01-VIP-3")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestResolveUnresolvable(t *testing.T) {
	ix := testIndex()

	for _, key := range []string{
		"tt-unknown",
		"gen-ds-2025-07-09-GA-0", // no such session in the composite index
		"gen-short",
		"bare",
		"",
	} {
		_, ok := ix.Resolve(key)
		assert.False(t, ok, "key %q should not resolve", key)
	}
}

func TestParseCompositeKey(t *testing.T) {
	tests := []struct {
		key       string
		sessionID string
		typeCode  string
		ok        bool
	}{
		{"gen-s1-GA-0", "s1", "GA", true},
		{"gen-ds-2025-07-02-VIP-12", "ds-2025-07-02", "VIP", true},
		{"gen-a-b-c-d-e-TYPE-9", "a-b-c-d-e", "TYPE", true},
		{"gen-GA-0", "", "", false}, // nothing left for the session id
		{"gen-", "", "", false},
		{"tt-of-1", "", "", false},
	}
	for _, tc := range tests {
		sessionID, typeCode, ok := ParseCompositeKey(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.sessionID, sessionID, tc.key)
		assert.Equal(t, tc.typeCode, typeCode, tc.key)
	}
}
