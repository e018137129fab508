package debate

import "errors"

var (
	// ErrQuorumNotMet is returned when too few agents produce an initial position.
	ErrQuorumNotMet = errors.New("quorum not met")
	// ErrMediatorFailed is returned when the single mediator call fails.
	ErrMediatorFailed = errors.New("mediator failed")
	// ErrToolLoop is returned when a tool failure cannot be fed back as evidence.
	ErrToolLoop = errors.New("unrecoverable tool failure")
	// ErrInvalidConfig is returned by NewCoordinator for unusable configuration.
	ErrInvalidConfig = errors.New("invalid debate configuration")
	// ErrInvalidTransition is returned when a phase change would move backwards.
	ErrInvalidTransition = errors.New("invalid phase transition")
)
