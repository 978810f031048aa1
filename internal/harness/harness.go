package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/aclreg/internal/engine"
	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/store"
	"github.com/roach88/aclreg/internal/testutil"
	"github.com/roach88/aclreg/internal/wire"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and registry
// 2. Deliver each step through the engine and check its expect clause
// 3. Evaluate assertions against the final registry and the trace
// 4. Replay the message log and cross-check the ACL index
//
// The returned error reports infrastructure failures only; scenario
// failures are recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := scenario.Registry.Options()
	reg := registry.New(opts)
	eng := engine.New(st, reg,
		engine.WithIDGenerator(testutil.NewScriptedIDGenerator("id")),
		engine.WithNow(testutil.NewDeterministicClock().Now),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		msg, err := step.Message.Message()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		reply := eng.Process(ctx, msg)
		if reply.Err != nil {
			return nil, fmt.Errorf("step %d: %w", i, reply.Err)
		}

		result.AddTrace(TraceEvent{
			Step:      i,
			Seq:       reply.Seq,
			MessageID: reply.MessageID,
			Action:    msg.Action,
			From:      msg.From,
			Outcome:   reply.Outcome,
			Duplicate: reply.Duplicate,
			Notices:   reply.Notices,
		})

		if step.Expect != nil {
			for _, e := range checkExpect(step.Expect, reply) {
				result.AddError(fmt.Sprintf("%s: %s", stepLabel(i, step), e))
			}
		}
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, reg) {
		result.AddError(errMsg)
	}

	if err := reg.VerifyACL(); err != nil {
		result.AddError(fmt.Sprintf("acl index: %v", err))
	}

	report, err := engine.Replay(ctx, st, opts)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := report.Err(); err != nil {
		result.AddError(err.Error())
	}
	result.StateHash = report.StoredHash

	return result, nil
}

func stepLabel(i int, step Step) string {
	if step.Name != "" {
		return fmt.Sprintf("step %d (%s)", i, step.Name)
	}
	return fmt.Sprintf("step %d (%s)", i, step.Message.Action)
}

// checkExpect compares a reply with the expect clause.
func checkExpect(want *Expect, reply engine.Reply) []string {
	var errs []string

	if want.Outcome != "" && want.Outcome != reply.Outcome {
		errs = append(errs, fmt.Sprintf("outcome = %q, expected %q", reply.Outcome, want.Outcome))
	}

	actions := make([]string, len(reply.Notices))
	for i, n := range reply.Notices {
		actions[i] = n.Action
	}
	if len(want.Notices) > 0 && !slices.Equal(want.Notices, actions) {
		errs = append(errs, fmt.Sprintf("notices = %v, expected %v", actions, want.Notices))
	}
	if want.NoNotices && len(actions) > 0 {
		errs = append(errs, fmt.Sprintf("notices = %v, expected none", actions))
	}

	if want.Error != "" {
		got := ""
		for _, n := range reply.Notices {
			if code := n.ErrorCode(); code != "" {
				got = code
				break
			}
		}
		if got != want.Error {
			errs = append(errs, fmt.Sprintf("error = %q, expected %q", got, want.Error))
		}
	}

	if want.Patch != nil {
		hasPatch := slices.ContainsFunc(reply.Notices, func(n wire.Notice) bool { return n.IsPatch() })
		if hasPatch != *want.Patch {
			errs = append(errs, fmt.Sprintf("patch emitted = %t, expected %t", hasPatch, *want.Patch))
		}
	}

	if want.Duplicate && !reply.Duplicate {
		errs = append(errs, "expected the message to be answered from the log as a duplicate")
	}

	return errs
}
