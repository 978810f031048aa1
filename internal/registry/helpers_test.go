package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/aclreg/internal/wire"
)

var (
	registryID    = addr("REGISTRY")
	registryOwner = addr("OWNER")
)

// addr pads a short name to a 43-character address.
func addr(name string) string {
	return name + strings.Repeat("_", 43-len(name))
}

func testOptions() Options {
	return Options{Identity: Identity{ID: registryID, Owner: registryOwner}}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(testOptions())
}

func stateBody(owner any, controllers ...string) *string {
	ownerJSON := "null"
	if s, ok := owner.(string); ok {
		ownerJSON = `"` + s + `"`
	}
	quoted := make([]string, len(controllers))
	for i, c := range controllers {
		quoted[i] = `"` + c + `"`
	}
	body := `{"Owner":` + ownerJSON + `,"Controllers":[` + strings.Join(quoted, ",") + `]}`
	return &body
}

// report applies an accepted State-Notice and fails the test otherwise.
func report(t *testing.T, r *Registry, entityID string, token int64, owner string, controllers ...string) ACLPatch {
	t.Helper()
	patch, err := r.ApplyStateNotice(entityID, stateBody(owner, controllers...), token, 0)
	require.NoError(t, err)
	return patch
}

func stateNoticeMsg(from string, ref int64, body *string) wire.Message {
	return wire.Message{
		Action:    wire.ActionStateNotice,
		From:      from,
		Reference: &ref,
		Data:      body,
	}
}

func taggedMsg(action, from string, tags map[string]any) wire.Message {
	return wire.Message{Action: action, From: from, Tags: tags}
}

func noticeActions(notices []wire.Notice) []string {
	out := make([]string, len(notices))
	for i, n := range notices {
		out[i] = n.Action
	}
	return out
}
