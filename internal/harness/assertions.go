package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/aclreg/internal/registry"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			actions := make([]string, len(event.Notices))
			for i, n := range event.Notices {
				actions[i] = n.Action
			}
			fmt.Fprintf(&buf, "  [%d] %s from %s -> %s %v\n", event.Seq, event.Action, event.From, event.Outcome, actions)
		}
	}

	return buf.String()
}

// assertACL checks that an address has exactly the expected affiliations.
func assertACL(reg *registry.Registry, a Assertion) error {
	got := reg.ACL(a.Address)
	want := registry.Affiliations{Owned: sorted(a.Owned), Controlled: sorted(a.Controlled)}
	if slices.Equal(got.Owned, want.Owned) && slices.Equal(got.Controlled, want.Controlled) {
		return nil
	}
	return &AssertionError{
		Type:     AssertACL,
		Expected: fmt.Sprintf("%s owns %v, controls %v", a.Address, want.Owned, want.Controlled),
		Actual:   fmt.Sprintf("owns %v, controls %v", got.Owned, got.Controlled),
	}
}

// assertEntityPresent checks that an entity is registered and, where the
// assertion says so, its owner and controllers.
func assertEntityPresent(reg *registry.Registry, a Assertion) error {
	rec, ok := reg.Entity(a.Entity)
	if !ok {
		return &AssertionError{
			Type:     AssertEntityPresent,
			Expected: fmt.Sprintf("entity %s registered", a.Entity),
			Actual:   "not registered",
		}
	}
	owner := rec.OwnerAddress()
	if a.Owner != "" && owner != a.Owner {
		return &AssertionError{
			Type:     AssertEntityPresent,
			Expected: fmt.Sprintf("entity %s owned by %s", a.Entity, a.Owner),
			Actual:   fmt.Sprintf("owner %q", owner),
		}
	}
	if a.OwnerAbsent && rec.Owner != nil {
		return &AssertionError{
			Type:     AssertEntityPresent,
			Expected: fmt.Sprintf("entity %s has no owner", a.Entity),
			Actual:   fmt.Sprintf("owner %q", owner),
		}
	}
	if a.Controllers != nil && !slices.Equal(rec.Controllers, sorted(a.Controllers)) {
		return &AssertionError{
			Type:     AssertEntityPresent,
			Expected: fmt.Sprintf("entity %s controlled by %v", a.Entity, sorted(a.Controllers)),
			Actual:   fmt.Sprintf("controllers %v", rec.Controllers),
		}
	}
	return nil
}

// assertEntityAbsent checks that an entity is not registered.
func assertEntityAbsent(reg *registry.Registry, a Assertion) error {
	if _, ok := reg.Entity(a.Entity); ok {
		return &AssertionError{
			Type:     AssertEntityAbsent,
			Expected: fmt.Sprintf("entity %s not registered", a.Entity),
			Actual:   "registered",
		}
	}
	return nil
}

// assertVersion checks catalog membership, and the module id when given.
func assertVersion(reg *registry.Registry, a Assertion) error {
	rec, ok := reg.Versions()[a.Version]
	switch {
	case a.Type == AssertVersionAbsent && ok:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("version %s not cataloged", a.Version),
			Actual:   fmt.Sprintf("cataloged with module %s", rec.ModuleID),
		}
	case a.Type == AssertVersionPresent && !ok:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("version %s cataloged", a.Version),
			Actual:   "not cataloged",
		}
	case a.Type == AssertVersionPresent && a.ModuleID != "" && rec.ModuleID != a.ModuleID:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("version %s -> module %s", a.Version, a.ModuleID),
			Actual:   fmt.Sprintf("module %s", rec.ModuleID),
		}
	}
	return nil
}

// assertNoticeCount checks the number of notices with an action across the
// whole trace.
func assertNoticeCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		for _, n := range event.Notices {
			if n.Action == a.Action {
				count++
			}
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertNoticeCount,
			Expected: fmt.Sprintf("%d %s notices", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d notices", count),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, reg *registry.Registry) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertACL:
			err = assertACL(reg, assertion)
		case AssertEntityPresent:
			err = assertEntityPresent(reg, assertion)
		case AssertEntityAbsent:
			err = assertEntityAbsent(reg, assertion)
		case AssertVersionPresent, AssertVersionAbsent:
			err = assertVersion(reg, assertion)
		case AssertNoticeCount:
			err = assertNoticeCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}
