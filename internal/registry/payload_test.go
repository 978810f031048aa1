package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aclreg/internal/wire"
)

func TestParseStateNotice_Valid(t *testing.T) {
	body := `{"Owner":"o","Controllers":["c2","c1","c2"],"Balance":"42"}`
	p, err := ParseStateNotice(&body)
	require.NoError(t, err)
	require.NotNil(t, p.Owner)
	assert.Equal(t, "o", *p.Owner)
	assert.Equal(t, []string{"c1", "c2"}, p.Controllers, "sorted and deduplicated")
}

func TestParseStateNotice_NullAndEmptyOwner(t *testing.T) {
	for _, body := range []string{
		`{"Owner":null,"Controllers":[]}`,
		`{"Owner":"","Controllers":[]}`,
	} {
		p, err := ParseStateNotice(&body)
		require.NoError(t, err, body)
		assert.Nil(t, p.Owner, body)
		assert.NotNil(t, p.Controllers, body)
	}
}

func TestParseStateNotice_Invalid(t *testing.T) {
	tests := map[string]*string{
		"nil body":            nil,
		"null":                wire.Ptr("null"),
		"blank":               wire.Ptr("  "),
		"not json":            wire.Ptr("{Owner"),
		"array":               wire.Ptr(`["a"]`),
		"missing owner":       wire.Ptr(`{"Controllers":[]}`),
		"missing controllers": wire.Ptr(`{"Owner":"o"}`),
		"null controllers":    wire.Ptr(`{"Owner":"o","Controllers":null}`),
		"numeric owner":       wire.Ptr(`{"Owner":5,"Controllers":[]}`),
		"controllers object":  wire.Ptr(`{"Owner":"o","Controllers":{}}`),
		"numeric controller":  wire.Ptr(`{"Owner":"o","Controllers":[1]}`),
		"empty controller":    wire.Ptr(`{"Owner":"o","Controllers":[""]}`),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStateNotice(body)
			assert.True(t, IsBadInput(err), "got %v", err)
		})
	}
}

func TestParseBatch(t *testing.T) {
	ids, err := ParseBatch(wire.Ptr(`["b","a","b"]`), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids, "first occurrence wins")

	ids, err = ParseBatch(wire.Ptr(`[]`), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)

	for _, bad := range []string{`{}`, `"a"`, `null`, `["a",null]`, `["a",1]`, `[""]`, `[["a"]]`} {
		_, err := ParseBatch(&bad, 10)
		assert.True(t, IsBadInput(err), bad)
	}

	_, err = ParseBatch(wire.Ptr(`["a","b","c"]`), 2)
	assert.True(t, IsBadInput(err))
}

func TestParseVersionRequest(t *testing.T) {
	src := addr("S")
	msg := taggedMsg(wire.ActionAddVersion, registryOwner, map[string]any{
		wire.TagVersion:     "1.2.3",
		wire.TagModuleID:    addr("M"),
		wire.TagLuaSourceID: src,
		wire.TagNotes:       "first",
	})
	req, ok := ParseVersionRequest(msg)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", req.Version)
	assert.Equal(t, src, req.SourceID, "Lua-Source-Id is an alias of Source-Id")
	assert.True(t, req.HasSource)
	assert.True(t, req.HasNotes)

	_, ok = ParseVersionRequest(taggedMsg(wire.ActionAddVersion, registryOwner, map[string]any{
		wire.TagVersion:  "1.2.3",
		wire.TagModuleID: addr("M"),
		wire.TagNotes:    123,
	}))
	assert.False(t, ok, "notes must be a string")

	_, ok = ParseVersionRequest(taggedMsg(wire.ActionAddVersion, registryOwner, map[string]any{
		wire.TagModuleID: addr("M"),
	}))
	assert.False(t, ok, "version is required")
}
