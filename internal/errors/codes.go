// Package errors provides structured error handling for the director core.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors (surfaced at load, never at tick time)
	CodeStoryletEmptyID           Code = "STORYLET_EMPTY_ID"
	CodeStoryletDuplicateID       Code = "STORYLET_DUPLICATE_ID"
	CodeStoryletInvalidWeight     Code = "STORYLET_INVALID_WEIGHT"
	CodeStoryletInvalidCooldown   Code = "STORYLET_INVALID_COOLDOWN"
	CodeStoryletInvalidDelta      Code = "STORYLET_INVALID_INTENSITY_DELTA"
	CodeStoryletUnknownReference  Code = "STORYLET_UNKNOWN_REFERENCE"
	CodePreconditionAmbiguousForm Code = "PRECONDITION_AMBIGUOUS_FORM"
	CodePreconditionEmptyForm     Code = "PRECONDITION_EMPTY_FORM"
	CodePreconditionUnknownOp     Code = "PRECONDITION_UNKNOWN_OP"
	CodeEffectUnknownOp           Code = "EFFECT_UNKNOWN_OP"
	CodeEffectUnknownScope        Code = "EFFECT_UNKNOWN_SCOPE"
	CodeConfigInvalidField        Code = "CONFIG_INVALID_FIELD"
	CodeConfigUnknownField        Code = "CONFIG_UNKNOWN_FIELD"
	CodeConfigInvalidMode         Code = "CONFIG_INVALID_MODE"
	CodeConfigInvalidPacing       Code = "CONFIG_INVALID_PACING_PREFERENCE"
	CodeProjectEmptyID            Code = "PROJECT_EMPTY_ID"

	// Path errors
	CodePathMalformed Code = "PATH_MALFORMED"
	CodePathNotFound  Code = "PATH_NOT_FOUND"

	// Effect application errors (fatal for the tick)
	CodeTypeMismatch Code = "TYPE_MISMATCH"
	CodeTickAborted  Code = "TICK_ABORTED"

	// Pipeline injection errors (the normal pipeline cannot produce these)
	CodeOnceViolation     Code = "ONCE_VIOLATION"
	CodeOrderingViolation Code = "ORDERING_VIOLATION"

	// Judge errors (non-fatal, treated as unsatisfied)
	CodeJudgeFailure Code = "JUDGE_FAILURE"
	CodeJudgeTimeout Code = "JUDGE_TIMEOUT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Replay errors
	CodeReplayInvalidRange Code = "REPLAY_INVALID_RANGE"
)
