package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/aclreg/internal/wire"
)

// Registry is the Registry Store plus its derived ACL index and the Version
// Catalog. It is not safe for concurrent use; exactly one goroutine owns it.
type Registry struct {
	opts     Options
	entities map[string]*EntityRecord
	versions map[string]VersionRecord
	acl      *aclIndex
	journal  journal
}

// New creates an empty registry.
func New(opts Options) *Registry {
	return &Registry{
		opts:     opts.withDefaults(),
		entities: make(map[string]*EntityRecord),
		versions: make(map[string]VersionRecord),
		acl:      newACLIndex(),
		journal:  newJournal(),
	}
}

// Options returns the effective options, defaults applied.
func (r *Registry) Options() Options {
	return r.opts
}

// Register creates a bare record for entityID if none exists. It reports
// whether a record was created. Existing records are left untouched.
func (r *Registry) Register(entityID string, ts int64) (bool, error) {
	if entityID == "" {
		return false, newError(ErrCodeBadInput, "", "entity id is required")
	}
	if _, ok := r.entities[entityID]; ok {
		return false, nil
	}
	r.entities[entityID] = &EntityRecord{
		EntityID:     entityID,
		Controllers:  []string{},
		RegisteredAt: ts,
	}
	r.journal.touchEntity(entityID)
	return true, nil
}

// ApplyStateNotice validates body, consults the Ordering Guard and replaces
// the entity's owner and controllers. The returned patch is nil when the
// accepted report did not change any address's membership.
//
// Validation happens before ordering, so a malformed body never advances
// LastSequence.
func (r *Registry) ApplyStateNotice(entityID string, body *string, token, ts int64) (ACLPatch, error) {
	if entityID == "" {
		return nil, newError(ErrCodeBadInput, "", "entity id is required")
	}
	payload, err := ParseStateNotice(body)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.EntityID = entityID
		}
		return nil, err
	}

	old := r.entities[entityID]
	if err := Admit(old, token); err != nil {
		return nil, err
	}

	var updated EntityRecord
	if old == nil {
		updated = EntityRecord{EntityID: entityID, RegisteredAt: ts}
	} else {
		updated = old.Clone()
	}
	updated.Owner = payload.Owner
	updated.Controllers = payload.Controllers
	updated.LastSequence = &token

	patch := r.acl.replace(old, &updated)
	r.entities[entityID] = &updated
	r.journal.touchEntity(entityID)
	return patch, nil
}

// Unregister removes entityID on behalf of caller. On success the returned
// patch is never nil, though it may be empty for an entity that had no
// owner or controllers.
func (r *Registry) Unregister(entityID, caller string) (ACLPatch, error) {
	if entityID == "" {
		return nil, newError(ErrCodeBadInput, "", "entity id is required")
	}
	rec := r.entities[entityID]
	if !IsAuthorized(wire.ActionUnregister, entityID, caller, rec, r.opts.Identity) {
		return nil, newError(ErrCodeUnauthorized, entityID, "%q may not unregister this entity", caller)
	}
	if rec == nil {
		return nil, newError(ErrCodeNotFound, entityID, "entity is not registered")
	}

	patch := r.acl.replace(rec, nil)
	if patch == nil {
		patch = ACLPatch{}
	}
	delete(r.entities, entityID)
	r.journal.touchEntity(entityID)
	return patch, nil
}

// BatchResult is the outcome of a Batch-Unregister that passed validation
// and authorization.
type BatchResult struct {
	// Requested holds the deduplicated ids in request order.
	Requested []string
	// Removed holds the ids that were removed, in request order.
	Removed []string
	// Failed maps each id that could not be removed to its error code.
	Failed map[string]ErrorCode
	// Patch is non-nil unless every requested id failed.
	Patch ACLPatch
}

// AllFailed reports whether nothing was removed from a non-empty batch.
func (b BatchResult) AllFailed() bool {
	return len(b.Requested) > 0 && len(b.Removed) == 0
}

// Partial reports whether some ids were removed and some failed.
func (b BatchResult) Partial() bool {
	return len(b.Removed) > 0 && len(b.Failed) > 0
}

// BatchUnregister removes every id listed in body. Only the registry owner may
// call it. Per-id failures are collected in the result instead of aborting
// the batch; only malformed input and unauthorized callers return an error.
func (r *Registry) BatchUnregister(body *string, caller string) (BatchResult, error) {
	ids, err := ParseBatch(body, r.opts.MaxBatchSize)
	if err != nil {
		return BatchResult{}, err
	}
	if !IsAuthorized(wire.ActionBatchUnregister, "", caller, nil, r.opts.Identity) {
		return BatchResult{}, newError(ErrCodeUnauthorized, "", "%q may not batch unregister", caller)
	}

	res := BatchResult{
		Requested: ids,
		Removed:   []string{},
		Failed:    map[string]ErrorCode{},
	}
	affected := make(map[string]struct{})
	for _, id := range ids {
		rec, ok := r.entities[id]
		if !ok {
			res.Failed[id] = ErrCodeNotFound
			continue
		}
		for _, a := range affectedAddresses(rec, nil) {
			affected[a] = struct{}{}
		}
		r.acl.remove(rec)
		delete(r.entities, id)
		r.journal.touchEntity(id)
		res.Removed = append(res.Removed, id)
	}

	if !res.AllFailed() {
		res.Patch = r.acl.patch(slices.Sorted(maps.Keys(affected)))
	}
	return res, nil
}

// ACL returns the current affiliations of address.
func (r *Registry) ACL(address string) Affiliations {
	return r.acl.affiliations(address)
}

// ACLSnapshot returns the affiliations of every address with at least one
// owned or controlled entity.
func (r *Registry) ACLSnapshot() map[string]Affiliations {
	return r.acl.snapshot()
}

// Counts returns the number of registered entities and catalog versions.
func (r *Registry) Counts() (entities, versions int) {
	return len(r.entities), len(r.versions)
}

// Entity returns a copy of the record for entityID.
func (r *Registry) Entity(entityID string) (EntityRecord, bool) {
	rec, ok := r.entities[entityID]
	if !ok {
		return EntityRecord{}, false
	}
	return rec.Clone(), true
}

// Entities returns copies of all records ordered by entity id.
func (r *Registry) Entities() []EntityRecord {
	out := make([]EntityRecord, 0, len(r.entities))
	for _, id := range slices.Sorted(maps.Keys(r.entities)) {
		out = append(out, r.entities[id].Clone())
	}
	return out
}

// State returns a deterministic snapshot: entities by id, versions in
// catalog order.
func (r *Registry) State() State {
	return State{
		Entities: r.Entities(),
		Versions: r.SortedVersions(),
	}
}

// Restore replaces all registry contents with s and rebuilds the ACL index.
// The change journal is cleared: restored state is already persisted.
func (r *Registry) Restore(s State) error {
	entities := make(map[string]*EntityRecord, len(s.Entities))
	acl := newACLIndex()
	for i := range s.Entities {
		rec := s.Entities[i].Clone()
		if rec.EntityID == "" {
			return fmt.Errorf("restore: entity %d has no id", i)
		}
		if _, dup := entities[rec.EntityID]; dup {
			return fmt.Errorf("restore: duplicate entity %s", rec.EntityID)
		}
		rec.Controllers = normalizeSet(rec.Controllers)
		entities[rec.EntityID] = &rec
		acl.add(&rec)
	}
	versions := make(map[string]VersionRecord, len(s.Versions))
	for _, v := range s.Versions {
		if v.Version == "" {
			return fmt.Errorf("restore: version record for module %s has no version", v.ModuleID)
		}
		versions[v.Version] = v
	}

	r.entities = entities
	r.versions = versions
	r.acl = acl
	r.journal = newJournal()
	return nil
}

// VerifyACL checks that the incrementally maintained index equals the index
// recomputed from scratch over all records.
func (r *Registry) VerifyACL() error {
	rebuilt := newACLIndex()
	for _, rec := range r.entities {
		rebuilt.add(rec)
	}
	got, want := r.acl.snapshot(), rebuilt.snapshot()
	if len(got) != len(want) {
		return fmt.Errorf("acl index has %d addresses, records imply %d", len(got), len(want))
	}
	for addr, w := range want {
		g, ok := got[addr]
		if !ok || !slices.Equal(g.Owned, w.Owned) || !slices.Equal(g.Controlled, w.Controlled) {
			return fmt.Errorf("acl index diverged for address %s", addr)
		}
	}
	return nil
}

// StateHash returns a content hash of State() for determinism checks.
func (r *Registry) StateHash() (string, error) {
	return HashState(r.State())
}

// HashState hashes the canonical JSON form of s. Entities are ordered by id
// and versions by identifier first, so the hash does not depend on which
// catalog ordering produced s.
func HashState(s State) (string, error) {
	norm := State{
		Entities: make([]EntityRecord, len(s.Entities)),
		Versions: slices.Clone(s.Versions),
	}
	for i := range s.Entities {
		norm.Entities[i] = s.Entities[i].Clone()
		norm.Entities[i].Controllers = normalizeSet(norm.Entities[i].Controllers)
	}
	slices.SortFunc(norm.Entities, func(a, b EntityRecord) int { return strings.Compare(a.EntityID, b.EntityID) })
	if norm.Versions == nil {
		norm.Versions = []VersionRecord{}
	}
	slices.SortFunc(norm.Versions, func(a, b VersionRecord) int { return strings.Compare(a.Version, b.Version) })

	data, err := wire.MarshalCanonical(norm)
	if err != nil {
		return "", fmt.Errorf("hash state: %w", err)
	}
	return wire.HashWithDomain(wire.DomainState, data), nil
}

// Changes lists what a batch of operations changed, resolved against the
// current state. Deleted entities and versions appear only by key.
type Changes struct {
	UpsertEntities []EntityRecord
	DeleteEntities []string
	UpsertVersions []VersionRecord
	DeleteVersions []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.UpsertEntities) == 0 && len(c.DeleteEntities) == 0 &&
		len(c.UpsertVersions) == 0 && len(c.DeleteVersions) == 0
}

// TakeChanges returns everything touched since the previous call and resets
// the journal. Keys are returned in sorted order.
func (r *Registry) TakeChanges() Changes {
	var c Changes
	for _, id := range slices.Sorted(maps.Keys(r.journal.entities)) {
		if rec, ok := r.entities[id]; ok {
			c.UpsertEntities = append(c.UpsertEntities, rec.Clone())
		} else {
			c.DeleteEntities = append(c.DeleteEntities, id)
		}
	}
	for _, v := range slices.Sorted(maps.Keys(r.journal.versions)) {
		if rec, ok := r.versions[v]; ok {
			c.UpsertVersions = append(c.UpsertVersions, rec)
		} else {
			c.DeleteVersions = append(c.DeleteVersions, v)
		}
	}
	r.journal = newJournal()
	return c
}

type journal struct {
	entities map[string]struct{}
	versions map[string]struct{}
}

func newJournal() journal {
	return journal{
		entities: make(map[string]struct{}),
		versions: make(map[string]struct{}),
	}
}

func (j journal) touchEntity(id string) { j.entities[id] = struct{}{} }

func (j journal) touchVersion(v string) { j.versions[v] = struct{}{} }
