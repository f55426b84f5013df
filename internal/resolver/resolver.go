// Package resolver maps opaque selection keys onto canonical ticket-offering
// tuples. Two addressing schemes exist: direct keys carry the offering id,
// synthetic composite keys encode date-session, ticket type and an ordinal
// for offerings that had no id at selection time.
package resolver

import (
	"strings"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
)

const (
	// DirectPrefix marks keys that address an offering by its backend id.
	DirectPrefix = "tt-"
	// CompositePrefix marks synthetic keys: gen-<sessionID>-<typeCode>-<ordinal>.
	CompositePrefix = "gen-"

	compositeSep = "-"
	indexSep     = "#"
)

// Resolved is the canonical tuple a selection key stands for.
type Resolved struct {
	DateSessionID string
	TypeCode      string
	UnitPrice     int64
	Label         string
}

// Index holds the two lookup tables resolution runs against. Built from the
// offering catalog; immutable once built.
type Index struct {
	direct    map[string]domain.TicketOffering
	composite map[string]domain.TicketOffering
}

func NewIndex(offerings []domain.TicketOffering) *Index {
	ix := &Index{
		direct:    make(map[string]domain.TicketOffering, len(offerings)),
		composite: make(map[string]domain.TicketOffering, len(offerings)),
	}
	for _, o := range offerings {
		if o.ID != "" {
			ix.direct[o.ID] = o
		}
		ix.composite[compositeKey(o.DateSessionID, o.TypeCode)] = o
	}
	return ix
}

// Resolve returns the canonical tuple for key, or ok=false when the key
// matches neither scheme or neither index. Unresolvable keys are the caller's
// to drop; resolution itself never fails hard.
func (ix *Index) Resolve(key string) (Resolved, bool) {
	if id, ok := strings.CutPrefix(key, DirectPrefix); ok {
		o, found := ix.direct[id]
		if !found {
			return Resolved{}, false
		}
		return resolved(o), true
	}

	sessionID, typeCode, ok := ParseCompositeKey(key)
	if !ok {
		return Resolved{}, false
	}
	o, found := ix.composite[compositeKey(sessionID, typeCode)]
	if !found {
		return Resolved{}, false
	}
	return resolved(o), true
}

// ParseCompositeKey splits gen-<sessionID>-<typeCode>-<ordinal> from the
// right: the ordinal and type code are the last two tokens, everything left
// is the session id. The session id may itself contain the separator, so a
// left-to-right split would truncate it.
func ParseCompositeKey(key string) (sessionID, typeCode string, ok bool) {
	rest, ok := strings.CutPrefix(key, CompositePrefix)
	if !ok {
		return "", "", false
	}

	cut := strings.LastIndex(rest, compositeSep) // ordinal
	if cut <= 0 {
		return "", "", false
	}
	rest = rest[:cut]

	cut = strings.LastIndex(rest, compositeSep) // type code
	if cut <= 0 || cut == len(rest)-1 {
		return "", "", false
	}
	return rest[:cut], rest[cut+1:], true
}

func compositeKey(sessionID, typeCode string) string {
	return sessionID + indexSep + typeCode
}

func resolved(o domain.TicketOffering) Resolved {
	return Resolved{
		DateSessionID: o.DateSessionID,
		TypeCode:      o.TypeCode,
		UnitPrice:     o.UnitPrice,
		Label:         o.Label,
	}
}
