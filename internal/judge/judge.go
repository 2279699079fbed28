// Package judge defines the natural-language condition judge the director
// delegates to, plus the memoizing cache and test doubles. The core never
// imports a concrete LLM client; anything satisfying Judge can serve.
package judge

import (
	"context"

	apperrors "github.com/louisbranch/storyloom/internal/errors"
)

// Verdict is a judge's answer for one condition against one state summary.
type Verdict struct {
	Satisfied  bool    `json:"satisfied"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Judge evaluates a free-text condition against a serialized state summary.
// Implementations must be deterministic with respect to the input pair when
// caching is enabled: same bytes, same verdict.
type Judge interface {
	Judge(ctx context.Context, conditionText, stateSummary string) (Verdict, error)
}

// Func adapts a function to the Judge interface.
type Func func(ctx context.Context, conditionText, stateSummary string) (Verdict, error)

// Judge implements the Judge interface.
func (f Func) Judge(ctx context.Context, conditionText, stateSummary string) (Verdict, error) {
	return f(ctx, conditionText, stateSummary)
}

// Stub is a canned-answer judge keyed by condition text. Conditions without
// an entry are unsatisfied. It is the primary testing vehicle.
type Stub map[string]Verdict

// Judge implements the Judge interface.
func (s Stub) Judge(_ context.Context, conditionText, _ string) (Verdict, error) {
	if verdict, ok := s[conditionText]; ok {
		return verdict, nil
	}
	return Verdict{Reason: "no stub verdict for condition"}, nil
}

// WithDeadline bounds a judge call by the context deadline. A judge error
// or expired context yields an unsatisfied verdict and a JUDGE_FAILURE or
// JUDGE_TIMEOUT error for the caller to surface.
func WithDeadline(ctx context.Context, j Judge, conditionText, stateSummary string) (Verdict, error) {
	type outcome struct {
		verdict Verdict
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		verdict, err := j.Judge(ctx, conditionText, stateSummary)
		done <- outcome{verdict: verdict, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return Verdict{Reason: "judge failure: " + result.err.Error()},
				apperrors.Wrap(apperrors.CodeJudgeFailure, result.err, "judge condition %q", conditionText)
		}
		return result.verdict, nil
	case <-ctx.Done():
		return Verdict{Reason: "judge timeout"},
			apperrors.Wrap(apperrors.CodeJudgeTimeout, ctx.Err(), "judge condition %q", conditionText)
	}
}
