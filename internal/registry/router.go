package registry

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/aclreg/internal/wire"
)

// Outcome labels recorded for every routed message.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeIgnored = "ignored"
)

// Result is everything the router produced for one inbound message.
type Result struct {
	// Notices are the outbound messages in emission order, without ids.
	Notices []wire.Notice

	// Outcome is OutcomeOK, OutcomePartial, OutcomeIgnored or an ErrorCode.
	Outcome string

	// Changes lists the store mutations to persist.
	Changes Changes
}

// Router is the Message Router: it dispatches inbound messages by action and
// shapes the outbound notices.
type Router struct {
	reg *Registry
}

// NewRouter creates a router over reg.
func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// Registry returns the registry the router dispatches to.
func (rt *Router) Registry() *Registry {
	return rt.reg
}

// Route processes msg to completion. It never panics on malformed input and
// never returns an error: every failure becomes a notice.
func (rt *Router) Route(msg wire.Message) Result {
	var res Result
	switch msg.Action {
	case wire.ActionRegister:
		res = rt.register(msg)
	case wire.ActionStateNotice:
		res = rt.stateNotice(msg)
	case wire.ActionUnregister:
		res = rt.unregister(msg)
	case wire.ActionBatchUnregister:
		res = rt.batchUnregister(msg)
	case wire.ActionAccessControlList:
		res = rt.accessControlList(msg)
	case wire.ActionGetEntities:
		res = rt.reply(msg, wire.ActionGetEntitiesNotice, nil, rt.reg.Entities())
	case wire.ActionAddVersion:
		res = rt.addVersion(msg)
	case wire.ActionRemoveVersion:
		res = rt.removeVersion(msg)
	case wire.ActionGetVersions:
		res = rt.reply(msg, wire.ActionGetVersionsNotice, nil, catalogData(rt.reg.Versions()))
	default:
		slog.Debug("ignoring message with unknown action",
			"action", msg.Action,
			"from", msg.From,
		)
		res = Result{Outcome: OutcomeIgnored}
	}
	res.Changes = rt.reg.TakeChanges()
	return res
}

// Redeliver answers a message whose id is already in the log without
// touching the registry. prior is the logged message with its outcome and
// notices. A redelivery never carries an ACL patch, and an accepted
// State-Notice seen again is a tie on its ordering reference, so it is
// rejected as stale.
func (rt *Router) Redeliver(prior wire.Message, outcome string, notices []wire.Notice) Result {
	if prior.Action == wire.ActionStateNotice && outcome == OutcomeOK {
		var err error
		if prior.Reference != nil {
			err = newError(ErrCodeStaleUpdate, prior.From,
				"reference %d is not newer than last accepted %d", *prior.Reference, *prior.Reference)
		} else {
			err = newError(ErrCodeStaleUpdate, prior.From, "state notice was already applied")
		}
		return rt.fail(prior, wire.ActionInvalidStateNoticeNotice, err, nil)
	}

	res := Result{Outcome: outcome}
	for _, n := range notices {
		if n.IsPatch() {
			continue
		}
		res.Notices = append(res.Notices, n)
	}
	return res
}

func (rt *Router) register(msg wire.Message) Result {
	entityID, _ := msg.Tag(wire.TagProcessID)
	created, err := rt.reg.Register(entityID, msg.Timestamp)
	if err != nil {
		return rt.fail(msg, wire.ActionInvalidRegisterNotice, err, nil)
	}
	slog.Debug("entity registered",
		"entity_id", entityID,
		"created", created,
	)
	return Result{
		Outcome: OutcomeOK,
		Notices: []wire.Notice{
			{Target: entityID, Action: wire.ActionState},
			{
				Target: msg.From,
				Action: wire.ActionRegisterNotice,
				Tags:   map[string]string{wire.TagProcessID: entityID},
			},
		},
	}
}

func (rt *Router) stateNotice(msg wire.Message) Result {
	if msg.Reference == nil {
		err := newError(ErrCodeBadInput, msg.From, "state notice carries no ordering reference")
		return rt.fail(msg, wire.ActionInvalidStateNoticeNotice, err, nil)
	}
	patch, err := rt.reg.ApplyStateNotice(msg.From, msg.Data, *msg.Reference, msg.Timestamp)
	if err != nil {
		return rt.fail(msg, wire.ActionInvalidStateNoticeNotice, err, nil)
	}
	res := Result{Outcome: OutcomeOK}
	if !patch.Empty() {
		res.Notices = append(res.Notices, rt.patchNotice(patch))
	}
	return res
}

func (rt *Router) unregister(msg wire.Message) Result {
	entityID, _ := msg.Tag(wire.TagProcessID)
	extra := map[string]string{wire.TagProcessID: entityID}
	patch, err := rt.reg.Unregister(entityID, msg.From)
	if err != nil {
		return rt.fail(msg, wire.ActionInvalidUnregisterNotice, err, extra)
	}
	return Result{
		Outcome: OutcomeOK,
		Notices: []wire.Notice{
			{Target: msg.From, Action: wire.ActionUnregisterNotice, Tags: extra},
			rt.patchNotice(patch),
		},
	}
}

func (rt *Router) batchUnregister(msg wire.Message) Result {
	br, err := rt.reg.BatchUnregister(msg.Data, msg.From)
	if err != nil {
		return rt.fail(msg, wire.ActionInvalidBatchUnregisterNotice, err, nil)
	}

	switch {
	case len(br.Requested) == 0:
		// A trivially successful batch: the success notice carries the
		// empty patch as its data so exactly one message is emitted. It goes
		// back to the caller, so it is not tagged for the patch consumer.
		return Result{
			Outcome: OutcomeOK,
			Notices: []wire.Notice{{
				Target: msg.From,
				Action: wire.ActionBatchUnregisterNotice,
				Data:   encode(ACLPatch{}),
			}},
		}

	case br.AllFailed():
		return Result{
			Outcome: string(ErrCodeNotFound),
			Notices: []wire.Notice{{
				Target: msg.From,
				Action: wire.ActionInvalidBatchUnregisterNotice,
				Tags:   map[string]string{wire.TagError: string(ErrCodeNotFound)},
				Data:   encode(br.Failed),
			}},
		}

	case br.Partial():
		return Result{
			Outcome: OutcomePartial,
			Notices: []wire.Notice{
				{
					Target: msg.From,
					Action: wire.ActionInvalidBatchUnregisterNotice,
					Tags:   map[string]string{wire.TagError: string(ErrCodeNotFound)},
					Data:   encode(br.Failed),
				},
				rt.patchNotice(br.Patch),
			},
		}

	default:
		return Result{
			Outcome: OutcomeOK,
			Notices: []wire.Notice{
				{
					Target: msg.From,
					Action: wire.ActionBatchUnregisterNotice,
					Data:   encode(br.Removed),
				},
				rt.patchNotice(br.Patch),
			},
		}
	}
}

func (rt *Router) accessControlList(msg wire.Message) Result {
	if !msg.HasTag(wire.TagAddress) {
		return rt.reply(msg, wire.ActionAccessControlListNotice, nil, rt.reg.ACLSnapshot())
	}
	address, ok := msg.Tag(wire.TagAddress)
	if !ok {
		address = ""
	}
	return rt.reply(msg, wire.ActionAccessControlListNotice,
		map[string]string{wire.TagAddress: address}, rt.reg.ACL(address))
}

func (rt *Router) addVersion(msg wire.Message) Result {
	var vr VersionResult
	if req, ok := ParseVersionRequest(msg); ok {
		vr = rt.reg.AddVersion(msg.From, req)
	} else {
		vr = VersionResult{Kind: VersionInvalid}
	}
	if vr.Kind != VersionAdded {
		return rt.silent(msg, vr)
	}
	return rt.reply(msg, wire.ActionAddVersionNotice,
		map[string]string{wire.TagVersion: vr.Record.Version}, newCatalogEntry(vr.Record))
}

func (rt *Router) removeVersion(msg wire.Message) Result {
	version, ok := msg.Tag(wire.TagVersion)
	vr := VersionResult{Kind: VersionInvalid}
	if ok {
		vr = rt.reg.RemoveVersion(msg.From, version)
	}
	if vr.Kind != VersionRemoved {
		return rt.silent(msg, vr)
	}
	return rt.reply(msg, wire.ActionRemoveVersionNotice,
		map[string]string{wire.TagVersion: vr.Record.Version}, newCatalogEntry(vr.Record))
}

// catalogEntry is a version record as consumers of version notices read
// it, keyed by version in Get-Versions data.
type catalogEntry struct {
	Module    string `json:"module"`
	LuaSource string `json:"luaSource,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func newCatalogEntry(v VersionRecord) catalogEntry {
	return catalogEntry{Module: v.ModuleID, LuaSource: v.SourceID, Notes: v.Notes}
}

func catalogData(versions map[string]VersionRecord) map[string]catalogEntry {
	out := make(map[string]catalogEntry, len(versions))
	for version, rec := range versions {
		out[version] = newCatalogEntry(rec)
	}
	return out
}

// silent drops a failed version operation without a notice. Surfacing it
// would reveal which addresses are privileged.
func (rt *Router) silent(msg wire.Message, vr VersionResult) Result {
	slog.Debug("version operation ignored",
		"action", msg.Action,
		"from", msg.From,
		"result", vr.Kind.String(),
	)
	return Result{Outcome: OutcomeIgnored}
}

func (rt *Router) reply(msg wire.Message, action string, tags map[string]string, data any) Result {
	return Result{
		Outcome: OutcomeOK,
		Notices: []wire.Notice{{
			Target: msg.From,
			Action: action,
			Tags:   tags,
			Data:   encode(data),
		}},
	}
}

// fail shapes the single failure notice for err.
func (rt *Router) fail(msg wire.Message, action string, err error, extra map[string]string) Result {
	code := CodeOf(err)
	if code == "" {
		code = ErrCodeBadInput
	}
	tags := maps.Clone(extra)
	if tags == nil {
		tags = make(map[string]string, 1)
	}
	tags[wire.TagError] = string(code)

	slog.Debug("message rejected",
		"action", msg.Action,
		"from", msg.From,
		"code", string(code),
		"error", err,
	)
	return Result{
		Outcome: string(code),
		Notices: []wire.Notice{{
			Target: msg.From,
			Action: action,
			Tags:   tags,
			Data:   err.Error(),
		}},
	}
}

func (rt *Router) patchNotice(patch ACLPatch) wire.Notice {
	if patch == nil {
		patch = ACLPatch{}
	}
	return wire.Notice{
		Target: rt.reg.opts.PatchTarget,
		Action: wire.ActionACLPatch,
		Tags:   map[string]string{wire.TagDevice: wire.PatchDevice},
		Data:   encode(patch),
	}
}

// encode renders v as canonical JSON. Every value the router encodes is built
// from strings and integers, so failure indicates a programming error; it is
// logged and an empty object is sent instead.
func encode(v any) string {
	data, err := wire.MarshalCanonical(v)
	if err != nil {
		slog.Error("failed to encode notice data",
			"type", fmt.Sprintf("%T", v),
			"error", err,
		)
		return "{}"
	}
	return string(data)
}
