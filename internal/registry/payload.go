package registry

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/aclreg/internal/wire"
)

// StatePayload is the typed form of a State-Notice body. Only the fields
// needed for ACL computation are retained; any other business state in the
// body is ignored.
type StatePayload struct {
	Owner       *string
	Controllers []string
}

// ParseStateNotice parses a State-Notice body. The body must be a JSON object
// with an Owner key (string or null) and a Controllers key (array of strings).
// Every failure is an ErrCodeBadInput error.
func ParseStateNotice(body *string) (StatePayload, error) {
	if body == nil || isJSONNull(*body) {
		return StatePayload{}, newError(ErrCodeBadInput, "", "state payload is empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*body), &fields); err != nil || fields == nil {
		return StatePayload{}, newError(ErrCodeBadInput, "", "state payload is not a JSON object")
	}

	rawOwner, ok := fields["Owner"]
	if !ok {
		return StatePayload{}, newError(ErrCodeBadInput, "", "state payload is missing Owner")
	}
	var owner *string
	if err := json.Unmarshal(rawOwner, &owner); err != nil {
		return StatePayload{}, newError(ErrCodeBadInput, "", "Owner must be a string or null")
	}
	if owner != nil && *owner == "" {
		owner = nil
	}

	rawControllers, ok := fields["Controllers"]
	if !ok || isJSONNull(string(rawControllers)) {
		return StatePayload{}, newError(ErrCodeBadInput, "", "state payload is missing Controllers")
	}
	var controllers []string
	if err := json.Unmarshal(rawControllers, &controllers); err != nil {
		return StatePayload{}, newError(ErrCodeBadInput, "", "Controllers must be an array of strings")
	}
	if slices.Contains(controllers, "") {
		return StatePayload{}, newError(ErrCodeBadInput, "", "Controllers must not contain empty addresses")
	}

	return StatePayload{Owner: owner, Controllers: normalizeSet(controllers)}, nil
}

// ParseBatch parses a Batch-Unregister body: a JSON array of strings of at
// most max elements. The whole batch is rejected if any element is not a
// string. Duplicates are removed, first occurrence wins.
func ParseBatch(body *string, max int) ([]string, error) {
	if body == nil || isJSONNull(*body) {
		return nil, newError(ErrCodeBadInput, "", "batch payload is empty")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(*body), &elems); err != nil {
		return nil, newError(ErrCodeBadInput, "", "batch payload must be a JSON array of entity ids")
	}
	if max > 0 && len(elems) > max {
		return nil, newError(ErrCodeBadInput, "", "batch of %d ids exceeds limit %d", len(elems), max)
	}

	ids := make([]string, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))
	for i, raw := range elems {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || isJSONNull(string(raw)) {
			return nil, newError(ErrCodeBadInput, "", "batch element %d is not a string", i)
		}
		if id == "" {
			return nil, newError(ErrCodeBadInput, "", "batch element %d is empty", i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// VersionRequest is the typed form of Add-Version / Remove-Version tags.
type VersionRequest struct {
	Version   string
	ModuleID  string
	SourceID  string
	Notes     string
	HasSource bool
	HasNotes  bool
}

// ParseVersionRequest extracts version tags. ok is false if any present tag
// is not a string, or if Version is absent.
func ParseVersionRequest(msg wire.Message) (req VersionRequest, ok bool) {
	if req.Version, ok = msg.Tag(wire.TagVersion); !ok {
		return VersionRequest{}, false
	}
	if msg.HasTag(wire.TagModuleID) {
		if req.ModuleID, ok = msg.Tag(wire.TagModuleID); !ok {
			return VersionRequest{}, false
		}
	}
	for _, name := range []string{wire.TagSourceID, wire.TagLuaSourceID} {
		if !msg.HasTag(name) {
			continue
		}
		if req.SourceID, ok = msg.Tag(name); !ok {
			return VersionRequest{}, false
		}
		req.HasSource = true
		break
	}
	if msg.HasTag(wire.TagNotes) {
		if req.Notes, ok = msg.Tag(wire.TagNotes); !ok {
			return VersionRequest{}, false
		}
		req.HasNotes = true
	}
	return req, true
}

func isJSONNull(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed == "" || trimmed == "null"
}

// normalizeSet sorts and deduplicates addresses. Never returns nil.
func normalizeSet(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
