package checkout

// State is the per-attempt reservation lifecycle. Paid, Expired and
// Cancelled are terminal.
type State int

const (
	StateIdle State = iota
	StateHolding
	StatePaid
	StateExpired
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHolding:
		return "HOLDING"
	case StatePaid:
		return "PAID"
	case StateExpired:
		return "EXPIRED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StatePaid || s == StateExpired || s == StateCancelled
}
