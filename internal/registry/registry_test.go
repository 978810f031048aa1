package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_CreatesBareRecord(t *testing.T) {
	r := newTestRegistry(t)
	a := addr("A")

	created, err := r.Register(a, 1700)
	require.NoError(t, err)
	assert.True(t, created)

	rec, ok := r.Entity(a)
	require.True(t, ok)
	assert.Nil(t, rec.Owner)
	assert.Empty(t, rec.Controllers)
	assert.Nil(t, rec.LastSequence, "bare record has unset ordering sentinel")
	assert.Equal(t, int64(1700), rec.RegisteredAt)
	assert.Empty(t, r.ACLSnapshot(), "bare record is not ACL-visible")
}

func TestRegister_Idempotent(t *testing.T) {
	r := newTestRegistry(t)
	a := addr("A")
	report(t, r, a, 5, addr("O"), addr("O"))

	created, err := r.Register(a, 9999)
	require.NoError(t, err)
	assert.False(t, created)

	rec, _ := r.Entity(a)
	require.NotNil(t, rec.Owner)
	assert.Equal(t, addr("O"), *rec.Owner, "re-register must not reset owner data")
	assert.Equal(t, int64(5), *rec.LastSequence)
}

func TestRegister_EmptyID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("", 0)
	assert.True(t, IsBadInput(err))
}

func TestApplyStateNotice_BootstrapsUnknownEntity(t *testing.T) {
	r := newTestRegistry(t)
	b, o := addr("B"), addr("O")

	patch := report(t, r, b, 1000, o, o)

	rec, ok := r.Entity(b)
	require.True(t, ok)
	assert.Equal(t, int64(1000), *rec.LastSequence)
	assert.Equal(t, ACLPatch{o: {Owned: []string{b}, Controlled: []string{b}}}, patch)
}

func TestApplyStateNotice_StaleTokenRejectedWithoutMutation(t *testing.T) {
	r := newTestRegistry(t)
	b, o, other := addr("B"), addr("O"), addr("X")
	report(t, r, b, 1000, o, o)
	before, _ := r.Entity(b)

	for _, token := range []int64{500, 999, 1000} {
		patch, err := r.ApplyStateNotice(b, stateBody(other, other), token, 0)
		assert.True(t, IsStale(err), "token %d", token)
		assert.Nil(t, patch)
	}

	after, _ := r.Entity(b)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{b}, r.ACL(o).Owned)
	assert.Empty(t, r.ACL(other).Owned)
}

func TestApplyStateNotice_UnsetSequenceAcceptsAnyToken(t *testing.T) {
	r := newTestRegistry(t)
	a, o := addr("A"), addr("O")
	_, err := r.Register(a, 0)
	require.NoError(t, err)

	report(t, r, a, -42, o)

	rec, _ := r.Entity(a)
	assert.Equal(t, int64(-42), *rec.LastSequence)
}

func TestApplyStateNotice_NewerTokenReplacesOwner(t *testing.T) {
	r := newTestRegistry(t)
	a, o1, o2, c := addr("A"), addr("O1"), addr("O2"), addr("C")
	report(t, r, a, 1, o1, c)

	patch := report(t, r, a, 2, o2, c)

	assert.Equal(t, ACLPatch{
		o1: {Owned: []string{}, Controlled: []string{}},
		o2: {Owned: []string{a}, Controlled: []string{}},
	}, patch, "controller c is unchanged and absent from the patch")
	assert.Equal(t, []string{a}, r.ACL(c).Controlled)
	require.NoError(t, r.VerifyACL())
}

func TestApplyStateNotice_NoDeltaSuppressesPatch(t *testing.T) {
	r := newTestRegistry(t)
	a, o := addr("A"), addr("O")
	report(t, r, a, 1, o, o)

	patch := report(t, r, a, 2, o, o)
	assert.Nil(t, patch)

	rec, _ := r.Entity(a)
	assert.Equal(t, int64(2), *rec.LastSequence, "accepted report still advances ordering")
}

func TestApplyStateNotice_InvalidPayloadNeverReachesOrdering(t *testing.T) {
	r := newTestRegistry(t)
	a, o := addr("A"), addr("O")
	report(t, r, a, 10, o)

	bad := `{"Owner":"x"}`
	_, err := r.ApplyStateNotice(a, &bad, 11, 0)
	require.True(t, IsBadInput(err))
	assert.Equal(t, a, err.(*Error).EntityID)

	rec, _ := r.Entity(a)
	assert.Equal(t, int64(10), *rec.LastSequence)

	// The next valid report at 11 is still admissible.
	report(t, r, a, 11, o)
}

func TestApplyStateNotice_RenouncedOwner(t *testing.T) {
	r := newTestRegistry(t)
	a, o := addr("A"), addr("O")
	report(t, r, a, 1, o)

	patch, err := r.ApplyStateNotice(a, stateBody(nil), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, ACLPatch{o: {Owned: []string{}, Controlled: []string{}}}, patch)
	assert.Empty(t, r.ACLSnapshot())
}

func TestUnregister_AuthorizationMatrix(t *testing.T) {
	a, o, c := addr("A"), addr("O"), addr("C")

	tests := []struct {
		name   string
		caller string
		ok     bool
	}{
		{"entity owner", o, true},
		{"entity itself", a, true},
		{"registry owner", registryOwner, true},
		{"registry itself", registryID, true},
		{"controller", c, false},
		{"stranger", addr("Z"), false},
		{"empty caller", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			report(t, r, a, 1, o, c)

			patch, err := r.Unregister(a, tt.caller)
			_, stillThere := r.Entity(a)
			if tt.ok {
				require.NoError(t, err)
				assert.False(t, stillThere)
				assert.Equal(t, ACLPatch{
					o: {Owned: []string{}, Controlled: []string{}},
					c: {Owned: []string{}, Controlled: []string{}},
				}, patch)
				return
			}
			assert.True(t, IsUnauthorized(err))
			assert.True(t, stillThere)
			assert.Nil(t, patch)
		})
	}
}

func TestUnregister_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Unregister(addr("A"), registryOwner)
	assert.True(t, IsNotFound(err))
}

func TestUnregister_BareRecordYieldsEmptyPatch(t *testing.T) {
	r := newTestRegistry(t)
	a := addr("A")
	_, err := r.Register(a, 0)
	require.NoError(t, err)

	patch, err := r.Unregister(a, a)
	require.NoError(t, err)
	assert.NotNil(t, patch)
	assert.True(t, patch.Empty())
}

func TestBatchUnregister(t *testing.T) {
	a, b, o := addr("A"), addr("B"), addr("O")
	missing := addr("MISSING")

	setup := func(t *testing.T) *Registry {
		r := newTestRegistry(t)
		report(t, r, a, 1, o)
		report(t, r, b, 1, o)
		return r
	}
	body := func(s string) *string { return &s }

	t.Run("non owner rejected", func(t *testing.T) {
		r := setup(t)
		_, err := r.BatchUnregister(body(`["`+a+`"]`), o)
		assert.True(t, IsUnauthorized(err))
		_, ok := r.Entity(a)
		assert.True(t, ok)
	})

	t.Run("object body rejected", func(t *testing.T) {
		r := setup(t)
		_, err := r.BatchUnregister(body(`{"ids":[]}`), registryOwner)
		assert.True(t, IsBadInput(err))
	})

	t.Run("non string element rejects whole batch", func(t *testing.T) {
		r := setup(t)
		_, err := r.BatchUnregister(body(`["`+a+`", 5]`), registryOwner)
		assert.True(t, IsBadInput(err))
		_, ok := r.Entity(a)
		assert.True(t, ok, "no per-id work happens before validation")
	})

	t.Run("duplicates removed once", func(t *testing.T) {
		r := setup(t)
		res, err := r.BatchUnregister(body(`["`+a+`","`+a+`"]`), registryOwner)
		require.NoError(t, err)
		assert.Equal(t, []string{a}, res.Removed)
		assert.Empty(t, res.Failed)
		assert.Equal(t, ACLPatch{o: {Owned: []string{b}, Controlled: []string{}}}, res.Patch)
	})

	t.Run("all missing", func(t *testing.T) {
		r := setup(t)
		res, err := r.BatchUnregister(body(`["`+missing+`"]`), registryOwner)
		require.NoError(t, err)
		assert.True(t, res.AllFailed())
		assert.Nil(t, res.Patch)
		assert.Equal(t, map[string]ErrorCode{missing: ErrCodeNotFound}, res.Failed)
	})

	t.Run("mixed", func(t *testing.T) {
		r := setup(t)
		res, err := r.BatchUnregister(body(`["`+a+`","`+missing+`","`+b+`"]`), registryOwner)
		require.NoError(t, err)
		assert.True(t, res.Partial())
		assert.Equal(t, []string{a, b}, res.Removed)
		assert.Equal(t, map[string]ErrorCode{missing: ErrCodeNotFound}, res.Failed)
		assert.Equal(t, ACLPatch{o: {Owned: []string{}, Controlled: []string{}}}, res.Patch)
		assert.Empty(t, r.Entities())
		require.NoError(t, r.VerifyACL())
	})

	t.Run("empty array", func(t *testing.T) {
		r := setup(t)
		res, err := r.BatchUnregister(body(`[]`), registryOwner)
		require.NoError(t, err)
		assert.False(t, res.AllFailed())
		assert.False(t, res.Partial())
		assert.NotNil(t, res.Patch)
		assert.True(t, res.Patch.Empty())
		assert.Len(t, r.Entities(), 2)
	})

	t.Run("over limit", func(t *testing.T) {
		opts := testOptions()
		opts.MaxBatchSize = 1
		r := New(opts)
		_, err := r.BatchUnregister(body(`["`+a+`","`+b+`"]`), registryOwner)
		assert.True(t, IsBadInput(err))
	})
}

func TestStateRestoreRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	a, b, o, c := addr("A"), addr("B"), addr("O"), addr("C")
	report(t, r, a, 1, o, c)
	report(t, r, b, 7, c)
	_, err := r.Register(addr("BARE"), 3)
	require.NoError(t, err)
	r.AddVersion(registryOwner, VersionRequest{Version: "1.0.0", ModuleID: addr("M")})

	wantHash, err := r.StateHash()
	require.NoError(t, err)

	restored := newTestRegistry(t)
	require.NoError(t, restored.Restore(r.State()))

	gotHash, err := restored.StateHash()
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)
	assert.Equal(t, r.ACLSnapshot(), restored.ACLSnapshot())
	assert.True(t, restored.TakeChanges().Empty(), "restore leaves nothing to persist")
	require.NoError(t, restored.VerifyACL())
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	a := addr("A")
	err := r.Restore(State{Entities: []EntityRecord{{EntityID: a}, {EntityID: a}}})
	assert.Error(t, err)
}

func TestStateHash_DiffersOnChange(t *testing.T) {
	r := newTestRegistry(t)
	h1, err := r.StateHash()
	require.NoError(t, err)

	report(t, r, addr("A"), 1, addr("O"))
	h2, err := r.StateHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestTakeChanges(t *testing.T) {
	r := newTestRegistry(t)
	a, b, o := addr("A"), addr("B"), addr("O")
	report(t, r, a, 1, o)
	report(t, r, b, 1, o)
	r.TakeChanges()

	_, err := r.Unregister(a, registryOwner)
	require.NoError(t, err)
	report(t, r, b, 2, addr("P"))

	c := r.TakeChanges()
	assert.Equal(t, []string{a}, c.DeleteEntities)
	require.Len(t, c.UpsertEntities, 1)
	assert.Equal(t, b, c.UpsertEntities[0].EntityID)
	assert.True(t, r.TakeChanges().Empty())
}

func TestEntityRecord_CloneDoesNotAlias(t *testing.T) {
	r := newTestRegistry(t)
	a, o := addr("A"), addr("O")
	report(t, r, a, 1, o, o)

	rec, _ := r.Entity(a)
	rec.Controllers[0] = "mutated"
	*rec.Owner = "mutated"

	again, _ := r.Entity(a)
	assert.Equal(t, []string{o}, again.Controllers)
	assert.Equal(t, o, *again.Owner)
}
