package registry

import (
	"slices"
)

// EntityRecord is the registry's ownership record for one entity.
type EntityRecord struct {
	EntityID     string   `json:"entity_id"`
	Owner        *string  `json:"owner"`         // nil: renounced or not yet reported
	Controllers  []string `json:"controllers"`   // sorted, deduplicated
	LastSequence *int64   `json:"last_sequence"` // nil: unset sentinel, accepts any token once
	RegisteredAt int64    `json:"registered_at"` // delivery timestamp (ms) of first contact
}

// Clone returns a deep copy so callers can never alias store-owned memory.
func (r *EntityRecord) Clone() EntityRecord {
	c := EntityRecord{
		EntityID:     r.EntityID,
		Controllers:  slices.Clone(r.Controllers),
		RegisteredAt: r.RegisteredAt,
	}
	if c.Controllers == nil {
		c.Controllers = []string{}
	}
	if r.Owner != nil {
		owner := *r.Owner
		c.Owner = &owner
	}
	if r.LastSequence != nil {
		seq := *r.LastSequence
		c.LastSequence = &seq
	}
	return c
}

// OwnerAddress returns the owner address or "" when there is none.
func (r *EntityRecord) OwnerAddress() string {
	if r == nil || r.Owner == nil {
		return ""
	}
	return *r.Owner
}

// VersionRecord describes one distributable module version.
type VersionRecord struct {
	Version  string `json:"version"`
	ModuleID string `json:"module_id"`
	SourceID string `json:"source_id,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Identity names the registry process and its designated owner.
type Identity struct {
	ID    string // the registry's own address
	Owner string // statically configured owner address
}

// VersionScheme selects how version identifiers are validated.
type VersionScheme string

const (
	// SchemeSemver accepts MAJOR.MINOR.PATCH with an optional pre-release suffix.
	SchemeSemver VersionScheme = "semver"
	// SchemeInteger accepts non-negative decimal integers.
	SchemeInteger VersionScheme = "integer"
)

// DefaultMaxBatchSize bounds Batch-Unregister payloads.
const DefaultMaxBatchSize = 1000

// Options configures a Registry.
type Options struct {
	Identity

	// VersionScheme defaults to SchemeSemver.
	VersionScheme VersionScheme

	// MaxBatchSize defaults to DefaultMaxBatchSize.
	MaxBatchSize int

	// PatchTarget receives ACL patch notices. Defaults to Identity.ID.
	PatchTarget string
}

func (o Options) withDefaults() Options {
	if o.VersionScheme == "" {
		o.VersionScheme = SchemeSemver
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.PatchTarget == "" {
		o.PatchTarget = o.ID
	}
	return o
}

// State is a restorable snapshot of everything the registry owns except the
// ACL index, which is always rebuilt from the records.
type State struct {
	Entities []EntityRecord  `json:"entities"`
	Versions []VersionRecord `json:"versions"`
}
