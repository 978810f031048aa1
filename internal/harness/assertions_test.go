package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/wire"
)

var testModule = strings.Repeat("M", 43)

// populatedRegistry has entity A owned by O and controlled by C, and one
// cataloged version.
func populatedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(RegistrySetup{}.Options())
	_, err := reg.ApplyStateNotice("A", wire.Ptr(`{"Owner":"O","Controllers":["C"]}`), 1, 0)
	require.NoError(t, err)
	res := reg.AddVersion(DefaultRegistryOwner, registry.VersionRequest{Version: "1.0.0", ModuleID: testModule})
	require.Equal(t, registry.VersionAdded, res.Kind)
	return reg
}

func traceWith(actions ...string) *Result {
	r := NewResult()
	notices := make([]wire.Notice, len(actions))
	for i, a := range actions {
		notices[i] = wire.Notice{Target: "T", Action: a}
	}
	r.AddTrace(TraceEvent{Seq: 1, Action: "Register", From: "S", Outcome: "ok", Notices: notices})
	return r
}

func TestAssertACL(t *testing.T) {
	reg := populatedRegistry(t)

	assert.NoError(t, assertACL(reg, Assertion{Type: AssertACL, Address: "O", Owned: []string{"A"}}))
	assert.NoError(t, assertACL(reg, Assertion{Type: AssertACL, Address: "C", Controlled: []string{"A"}}))
	assert.NoError(t, assertACL(reg, Assertion{Type: AssertACL, Address: "nobody"}))

	err := assertACL(reg, Assertion{Type: AssertACL, Address: "O"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owns [A]")
}

func TestAssertEntityPresent(t *testing.T) {
	reg := populatedRegistry(t)

	assert.NoError(t, assertEntityPresent(reg, Assertion{Entity: "A"}))
	assert.NoError(t, assertEntityPresent(reg, Assertion{Entity: "A", Owner: "O", Controllers: []string{"C"}}))

	assert.Error(t, assertEntityPresent(reg, Assertion{Entity: "B"}))
	assert.Error(t, assertEntityPresent(reg, Assertion{Entity: "A", Owner: "X"}))
	assert.Error(t, assertEntityPresent(reg, Assertion{Entity: "A", OwnerAbsent: true}))
	assert.Error(t, assertEntityPresent(reg, Assertion{Entity: "A", Controllers: []string{"C", "D"}}))
}

func TestAssertEntityAbsent(t *testing.T) {
	reg := populatedRegistry(t)
	assert.NoError(t, assertEntityAbsent(reg, Assertion{Entity: "B"}))
	assert.Error(t, assertEntityAbsent(reg, Assertion{Entity: "A"}))
}

func TestAssertVersion(t *testing.T) {
	reg := populatedRegistry(t)

	assert.NoError(t, assertVersion(reg, Assertion{Type: AssertVersionPresent, Version: "1.0.0"}))
	assert.NoError(t, assertVersion(reg, Assertion{Type: AssertVersionPresent, Version: "1.0.0", ModuleID: testModule}))
	assert.NoError(t, assertVersion(reg, Assertion{Type: AssertVersionAbsent, Version: "2.0.0"}))

	assert.Error(t, assertVersion(reg, Assertion{Type: AssertVersionPresent, Version: "2.0.0"}))
	assert.Error(t, assertVersion(reg, Assertion{Type: AssertVersionPresent, Version: "1.0.0", ModuleID: "other"}))
	assert.Error(t, assertVersion(reg, Assertion{Type: AssertVersionAbsent, Version: "1.0.0"}))
}

func TestAssertNoticeCount(t *testing.T) {
	result := traceWith("State", "Register-Notice", "State")

	assert.NoError(t, assertNoticeCount(result.Trace, Assertion{Action: "State", Count: 2}))
	assert.NoError(t, assertNoticeCount(result.Trace, Assertion{Action: "ACL-Patch", Count: 0}))

	err := assertNoticeCount(result.Trace, Assertion{Action: "State", Count: 1})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Trace, 1)
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	reg := populatedRegistry(t)
	result := traceWith("ACL-Patch")

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertACL, Address: "O", Owned: []string{"A"}},
		{Type: AssertEntityPresent, Entity: "A"},
		{Type: AssertVersionPresent, Version: "1.0.0"},
		{Type: AssertNoticeCount, Action: "ACL-Patch", Count: 1},
	}, reg)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	reg := populatedRegistry(t)
	result := traceWith()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertEntityPresent, Entity: "A"},
		{Type: AssertEntityAbsent, Entity: "A"},
		{Type: AssertNoticeCount, Action: "State", Count: 1},
	}, reg)
	assert.Len(t, errs, 2)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "bogus"}}, populatedRegistry(t))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "unknown assertion type")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertNoticeCount,
		Expected: "1 State notices",
		Actual:   "0 notices",
		Trace: []TraceEvent{{
			Seq:     3,
			Action:  "Register",
			From:    "S",
			Outcome: "ok",
			Notices: []wire.Notice{{Action: "State"}},
		}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: notice_count")
	assert.Contains(t, msg, "Expected: 1 State notices")
	assert.Contains(t, msg, "Actual: 0 notices")
	assert.Contains(t, msg, "[3] Register from S -> ok [State]")
}
