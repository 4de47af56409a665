package aggregate

import "errors"

var (
	// ErrInvalidTrade is returned when a trade lacks a mint or signature,
	// or its mint does not match the target aggregate.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInvalidAggregate is returned when an aggregate has no mint.
	ErrInvalidAggregate = errors.New("invalid aggregate")
)

// ApplyResult reports what ApplyTrade did.
type ApplyResult int

const (
	// ApplyApplied means the trade changed the aggregate.
	ApplyApplied ApplyResult = iota
	// ApplyDuplicate means the signature was already in the recent window.
	ApplyDuplicate
	// ApplyRejected means the trade was invalid and nothing changed.
	ApplyRejected
)

func (r ApplyResult) String() string {
	switch r {
	case ApplyApplied:
		return "applied"
	case ApplyDuplicate:
		return "duplicate"
	case ApplyRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
