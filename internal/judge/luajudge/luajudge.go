// Package luajudge implements a scripted judge backed by an author-supplied
// Lua function. It is the offline counterpart to an LLM judge: conditions
// are judged by project-specific rules instead of a model, so runs stay
// deterministic end to end.
package luajudge

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/Shopify/go-lua"

	"github.com/louisbranch/storyloom/internal/judge"
)

// entrypoint is the global function the script must define:
//
//	function judge(condition, summary)
//	  return satisfied, confidence, reason
//	end
const entrypoint = "judge"

// Judge evaluates conditions through a Lua script. The script must be pure
// with respect to its two arguments for verdicts to be cacheable.
type Judge struct {
	mu    sync.Mutex
	state *lua.State
}

// New compiles the script and verifies it defines the judge entrypoint.
func New(script string) (*Judge, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	if err := lua.DoString(l, script); err != nil {
		return nil, fmt.Errorf("load judge script: %w", err)
	}

	l.Global(entrypoint)
	defined := l.IsFunction(-1)
	l.Pop(1)
	if !defined {
		return nil, fmt.Errorf("judge script does not define function %q", entrypoint)
	}

	return &Judge{state: l}, nil
}

// Judge implements the judge.Judge interface.
func (j *Judge) Judge(_ context.Context, conditionText, stateSummary string) (judge.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	l := j.state
	l.Global(entrypoint)
	l.PushString(conditionText)
	l.PushString(stateSummary)
	if err := l.ProtectedCall(2, 3, 0); err != nil {
		return judge.Verdict{}, fmt.Errorf("call judge script: %w", err)
	}

	satisfied := l.ToBoolean(-3)
	confidence, ok := l.ToNumber(-2)
	if !ok {
		confidence = 0.5
	}
	reason, ok := l.ToString(-1)
	if !ok {
		reason = "judge script returned no reason"
	}
	l.Pop(3)

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return judge.Verdict{Satisfied: satisfied, Confidence: confidence, Reason: reason}, nil
}
