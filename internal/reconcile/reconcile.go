// Package reconcile matches locally drafted schedules against the
// backend-assigned date-sessions returned after draft-event creation. The
// backend may return sessions out of order, or fewer than were submitted, so
// positional correspondence is only trusted when the counts line up.
package reconcile

import (
	"time"

	"github.com/robertarktes/checkout-orchestrator/internal/domain"
)

// Tolerance is how far a backend session's start may drift from a local
// draft's start and still be considered the same session.
const Tolerance = 12 * time.Hour

// Match returns one backend id per local schedule, in local order. An empty
// string means the entry could not be matched; callers must treat that as a
// hard failure for the session.
//
// Equal-length inputs with all ids present and every start within Tolerance
// of its positional counterpart map positionally. Anything else
// falls back to nearest-start-time matching: each local entry takes the
// unused remote entry closest to its start, within Tolerance, ties broken by
// remote input order.
func Match(local []domain.DraftSchedule, remote []domain.RemoteSession) []string {
	ids := make([]string, len(local))
	if len(local) == 0 {
		return ids
	}

	if len(remote) == len(local) {
		positional := true
		for i := range remote {
			if remote[i].ID == "" {
				positional = false
				break
			}
			// A counterpart too far from its local start is not the same
			// session no matter where it sits in the list.
			if !remote[i].StartAt.IsZero() && absDuration(remote[i].StartAt.Sub(local[i].StartAt)) > Tolerance {
				positional = false
				break
			}
		}
		if positional {
			for i := range remote {
				ids[i] = remote[i].ID
			}
			return ids
		}
	}

	used := make([]bool, len(remote))
	for i, draft := range local {
		best := -1
		var bestDiff time.Duration
		for j, rs := range remote {
			if used[j] || rs.ID == "" {
				continue
			}
			diff := absDuration(rs.StartAt.Sub(draft.StartAt))
			if diff > Tolerance {
				continue
			}
			if best == -1 || diff < bestDiff {
				best = j
				bestDiff = diff
			}
		}
		if best >= 0 {
			used[best] = true
			ids[i] = remote[best].ID
		}
	}
	return ids
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
