package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/store"
	"github.com/roach88/aclreg/internal/wire"
)

func populate(t *testing.T, s *store.Store) *Engine {
	t.Helper()
	ctx := context.Background()
	engine := newTestEngine(t, s)
	e1, e2 := addr("E1"), addr("E2")

	msgs := []wire.Message{
		registerMsg(addr("S"), e1),
		registerMsg(addr("S"), e2),
		stateMsg(e1, 1, addr("O"), addr("C1"), addr("C2")),
		stateMsg(e2, 1, addr("O"), addr("C1")),
		stateMsg(e1, 1, addr("X")), // stale
		{
			Action: wire.ActionAddVersion,
			From:   testOwner,
			Tags:   map[string]any{wire.TagVersion: "1.0.0", wire.TagModuleID: addr("M")},
		},
		{Action: wire.ActionUnregister, From: addr("O"), Tags: map[string]any{wire.TagProcessID: e2}},
		{Action: wire.ActionGetEntities, From: addr("Q")},
	}
	for _, m := range msgs {
		require.NoError(t, engine.Process(ctx, m).Err)
	}
	return engine
}

func TestReplay_ReproducesLog(t *testing.T) {
	s := setupTestStore(t)
	engine := populate(t, s)

	report, err := Replay(context.Background(), s, testRegistryOptions())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Messages)
	assert.Empty(t, report.Mismatches)
	assert.True(t, report.Deterministic())
	assert.NoError(t, report.Err())

	live, err := engine.Registry().StateHash()
	require.NoError(t, err)
	assert.Equal(t, live, report.ReplayedHash)
	assert.Equal(t, live, report.StoredHash)
}

func TestReplay_EmptyStore(t *testing.T) {
	s := setupTestStore(t)

	report, err := Replay(context.Background(), s, testRegistryOptions())
	require.NoError(t, err)
	assert.Zero(t, report.Messages)
	assert.True(t, report.Deterministic())
}

func TestReplay_DetectsDivergentOptions(t *testing.T) {
	s := setupTestStore(t)
	populate(t, s)

	// A different owner turns the logged Add-Version into an ignored message.
	opts := testRegistryOptions()
	opts.Owner = addr("SOMEONE-ELSE")

	report, err := Replay(context.Background(), s, opts)
	require.NoError(t, err)
	assert.False(t, report.Deterministic())
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, wire.ActionAddVersion, report.Mismatches[0].Action)
	assert.NotEqual(t, report.ReplayedHash, report.StoredHash)

	err = report.Err()
	require.Error(t, err)
	assert.True(t, IsReplayDiverged(err))
}

func TestReplay_DetectsStateNotInLog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := addr("O")
	require.NoError(t, s.ReplaceState(ctx, registry.State{
		Entities: []registry.EntityRecord{{EntityID: addr("E"), Owner: &owner, Controllers: []string{}}},
	}))

	report, err := Replay(ctx, s, testRegistryOptions())
	require.NoError(t, err)
	assert.Empty(t, report.Mismatches)
	assert.False(t, report.Deterministic(), "imported state is not reproducible from an empty log")
}

func TestSameNotice_IgnoresIDs(t *testing.T) {
	a := wire.Notice{ID: "1", Target: "t", Action: "A", Tags: map[string]string{"k": "v"}, Data: "d"}
	b := a
	b.ID = "2"
	assert.True(t, sameNotice(a, b))

	b.Tags = map[string]string{"k": "w"}
	assert.False(t, sameNotice(a, b))

	b.Tags = nil
	assert.False(t, sameNotice(a, b))
}
