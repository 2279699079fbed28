package director

import (
	"context"
	"fmt"

	"github.com/louisbranch/storyloom/internal/judge"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// NLEvaluation records one judge consultation for the tick audit trail.
type NLEvaluation struct {
	ConditionText string  `json:"condition_text"`
	Satisfied     bool    `json:"satisfied"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	CacheHit      bool    `json:"cache_hit"`
}

// ConditionReason is the per-condition outcome returned by Explain.
type ConditionReason struct {
	Condition string `json:"condition"`
	Satisfied bool   `json:"satisfied"`
	Reason    string `json:"reason"`
}

// evalOutcome is the shared result shape for all three evaluation modes.
// The mode only changes who produced each reason.
type evalOutcome struct {
	satisfied bool
	reasons   []ConditionReason
	nlEvals   []NLEvaluation
}

// evaluateConditions evaluates a storylet's preconditions under the
// configured mode. With shortCircuit set, evaluation stops at the first
// failure the mode's discipline allows; Explain passes false to collect a
// full per-condition trace.
func (d *Director) evaluateConditions(ctx context.Context, conds []story.Precondition, st *state.State, summary string, mode story.Mode, shortCircuit bool) evalOutcome {
	if len(conds) == 0 {
		return evalOutcome{satisfied: true}
	}

	outcome := evalOutcome{satisfied: true}
	results := make([]ConditionReason, 0, len(conds))

	record := func(cond story.Precondition, satisfied bool, reason string) {
		results = append(results, ConditionReason{Condition: cond.Text(), Satisfied: satisfied, Reason: reason})
		if !satisfied {
			outcome.satisfied = false
		}
	}

	switch mode {
	case story.ModeAIPrimary:
		for _, cond := range conds {
			verdict, hit := d.consultJudge(ctx, cond.Text(), summary, &outcome)
			record(cond, verdict.Satisfied, nlReason(verdict, hit))
			if !outcome.satisfied && shortCircuit {
				break
			}
		}

	case story.ModeAIAssisted:
		// Typed conditions first, in the author's declared order. The first
		// failing typed condition rejects the storylet without invoking the
		// judge.
		typedFailed := false
		for _, cond := range conds {
			if cond.IsNL() {
				continue
			}
			satisfied, reason := evalTyped(st, cond)
			record(cond, satisfied, reason)
			if !satisfied {
				typedFailed = true
				if shortCircuit {
					break
				}
			}
		}
		if typedFailed && shortCircuit {
			break
		}
		for _, cond := range conds {
			if !cond.IsNL() {
				continue
			}
			verdict, hit := d.consultJudge(ctx, cond.NLText, summary, &outcome)
			record(cond, verdict.Satisfied, nlReason(verdict, hit))
			if !verdict.Satisfied && shortCircuit {
				break
			}
		}

	default: // deterministic
		for _, cond := range conds {
			if cond.IsNL() {
				record(cond, false, "skipped: nl condition in deterministic mode")
			} else {
				satisfied, reason := evalTyped(st, cond)
				record(cond, satisfied, reason)
			}
			if !outcome.satisfied && shortCircuit {
				break
			}
		}
	}

	outcome.reasons = results
	return outcome
}

// consultJudge runs one judge call through the memoizing cache. Judge
// failures and timeouts read as unsatisfied verdicts; they never fail the
// tick. At most one call is made per (condition, summary) tuple per tick.
func (d *Director) consultJudge(ctx context.Context, conditionText, summary string, outcome *evalOutcome) (judge.Verdict, bool) {
	if d.judge == nil {
		verdict := judge.Verdict{Reason: "no judge configured"}
		outcome.nlEvals = append(outcome.nlEvals, nlEvaluation(conditionText, verdict, false))
		return verdict, false
	}

	verdict, hit, err := d.judge.Evaluate(ctx, conditionText, summary)
	if err != nil {
		// The verdict already carries the failure reason.
		verdict.Satisfied = false
	}
	outcome.nlEvals = append(outcome.nlEvals, nlEvaluation(conditionText, verdict, hit))
	return verdict, hit
}

func nlEvaluation(conditionText string, verdict judge.Verdict, hit bool) NLEvaluation {
	return NLEvaluation{
		ConditionText: conditionText,
		Satisfied:     verdict.Satisfied,
		Confidence:    verdict.Confidence,
		Reason:        verdict.Reason,
		CacheHit:      hit,
	}
}

func nlReason(verdict judge.Verdict, hit bool) string {
	status := "unsatisfied"
	if verdict.Satisfied {
		status = "satisfied"
	}
	reason := fmt.Sprintf("judge: %s (confidence %.2f): %s", status, verdict.Confidence, verdict.Reason)
	if hit {
		reason += " [cached]"
	}
	return reason
}
