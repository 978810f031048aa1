package registry

import (
	"maps"
	"regexp"
	"slices"
	"strconv"

	"golang.org/x/mod/semver"

	"github.com/roach88/aclreg/internal/wire"
)

var (
	// moduleIDPattern matches 43-character base64url transaction ids.
	moduleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

	// semverPattern is the semver.org grammar without build metadata.
	// Numeric components are unbounded.
	semverPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?$`)

	integerPattern = regexp.MustCompile(`^(0|[1-9]\d*)$`)
)

// VersionResultKind discriminates Version Catalog outcomes.
//
// Unauthorized, Invalid and Missing are intentionally not surfaced to callers
// as notices: a silent no-op does not reveal which addresses are privileged.
type VersionResultKind int

const (
	VersionAdded VersionResultKind = iota + 1
	VersionRemoved
	VersionUnauthorized
	VersionInvalid
	VersionMissing
)

// String returns the outcome label used in logs and the message log.
func (k VersionResultKind) String() string {
	switch k {
	case VersionAdded:
		return "added"
	case VersionRemoved:
		return "removed"
	case VersionUnauthorized:
		return "unauthorized"
	case VersionInvalid:
		return "invalid"
	case VersionMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// VersionResult is the outcome of a catalog mutation.
type VersionResult struct {
	Kind   VersionResultKind
	Record VersionRecord
}

// ValidModuleID reports whether id is a well-formed module or source id.
func ValidModuleID(id string) bool {
	return moduleIDPattern.MatchString(id)
}

// ValidVersion reports whether version is well-formed under scheme.
func ValidVersion(scheme VersionScheme, version string) bool {
	switch scheme {
	case SchemeInteger:
		return integerPattern.MatchString(version)
	case SchemeSemver, "":
		return semverPattern.MatchString(version)
	default:
		return false
	}
}

// AddVersion creates or overwrites a version entry. Owner-only.
func (r *Registry) AddVersion(caller string, req VersionRequest) VersionResult {
	if !IsAuthorized(wire.ActionAddVersion, "", caller, nil, r.opts.Identity) {
		return VersionResult{Kind: VersionUnauthorized}
	}
	if !ValidVersion(r.opts.VersionScheme, req.Version) ||
		!ValidModuleID(req.ModuleID) ||
		(req.HasSource && !ValidModuleID(req.SourceID)) {
		return VersionResult{Kind: VersionInvalid}
	}

	rec := VersionRecord{
		Version:  req.Version,
		ModuleID: req.ModuleID,
		SourceID: req.SourceID,
		Notes:    req.Notes,
	}
	r.versions[rec.Version] = rec
	r.journal.touchVersion(rec.Version)
	return VersionResult{Kind: VersionAdded, Record: rec}
}

// RemoveVersion deletes a version entry. Owner-only; absent versions are a no-op.
func (r *Registry) RemoveVersion(caller, version string) VersionResult {
	if !IsAuthorized(wire.ActionRemoveVersion, "", caller, nil, r.opts.Identity) {
		return VersionResult{Kind: VersionUnauthorized}
	}
	rec, ok := r.versions[version]
	if !ok {
		return VersionResult{Kind: VersionMissing}
	}
	delete(r.versions, version)
	r.journal.touchVersion(version)
	return VersionResult{Kind: VersionRemoved, Record: rec}
}

// Versions returns a copy of the catalog keyed by version.
func (r *Registry) Versions() map[string]VersionRecord {
	return maps.Clone(r.versions)
}

// SortedVersions returns the catalog in ascending version order.
func (r *Registry) SortedVersions() []VersionRecord {
	out := slices.Collect(maps.Values(r.versions))
	SortVersions(r.opts.VersionScheme, out)
	return out
}

// SortVersions orders records by semantic precedence (semver scheme) or
// numeric value (integer scheme). Ties fall back to string order.
func SortVersions(scheme VersionScheme, records []VersionRecord) {
	slices.SortFunc(records, func(a, b VersionRecord) int {
		if c := compareVersions(scheme, a.Version, b.Version); c != 0 {
			return c
		}
		return compareStrings(a.Version, b.Version)
	})
}

func compareVersions(scheme VersionScheme, a, b string) int {
	if scheme == SchemeInteger {
		ai, aerr := strconv.ParseUint(a, 10, 64)
		bi, berr := strconv.ParseUint(b, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
		// Beyond uint64: longer decimal strings are larger.
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return 0
	}
	return semver.Compare("v"+a, "v"+b)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
