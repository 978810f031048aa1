package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/wire"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registry overrides the default registry identity and limits.
	Registry RegistrySetup `yaml:"registry,omitempty"`

	// Steps are delivered in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// RegistrySetup configures the registry under test. Empty fields take the
// defaults below.
type RegistrySetup struct {
	ID            string `yaml:"id,omitempty"`
	Owner         string `yaml:"owner,omitempty"`
	VersionScheme string `yaml:"version_scheme,omitempty"`
	MaxBatchSize  int    `yaml:"max_batch_size,omitempty"`
	PatchTarget   string `yaml:"patch_target,omitempty"`
}

// Default registry identity for scenarios.
const (
	DefaultRegistryID    = "REGISTRY"
	DefaultRegistryOwner = "OWNER"
)

// Options converts the setup into registry options.
func (r RegistrySetup) Options() registry.Options {
	opts := registry.Options{
		Identity: registry.Identity{
			ID:    r.ID,
			Owner: r.Owner,
		},
		VersionScheme: registry.VersionScheme(r.VersionScheme),
		MaxBatchSize:  r.MaxBatchSize,
		PatchTarget:   r.PatchTarget,
	}
	if opts.ID == "" {
		opts.ID = DefaultRegistryID
	}
	if opts.Owner == "" {
		opts.Owner = DefaultRegistryOwner
	}
	return opts
}

// Step delivers one message and optionally checks what it produced.
type Step struct {
	// Name labels the step in failure messages.
	Name string `yaml:"name,omitempty"`

	Message MessageSpec `yaml:"message"`

	// Expect is checked against the engine's reply. Nil skips the check.
	Expect *Expect `yaml:"expect,omitempty"`
}

// MessageSpec is an inbound message as written in YAML.
type MessageSpec struct {
	ID        string         `yaml:"id,omitempty"`
	Action    string         `yaml:"action"`
	From      string         `yaml:"from"`
	Reference *int64         `yaml:"reference,omitempty"`
	Tags      map[string]any `yaml:"tags,omitempty"`

	// Data is delivered verbatim when it is a string and JSON-encoded
	// otherwise. Absent means the message carries no data.
	Data any `yaml:"data,omitempty"`
}

// Message builds the wire message.
func (m MessageSpec) Message() (wire.Message, error) {
	msg := wire.Message{
		ID:        m.ID,
		Action:    m.Action,
		From:      m.From,
		Reference: m.Reference,
		Tags:      m.Tags,
	}
	switch d := m.Data.(type) {
	case nil:
	case string:
		msg.Data = &d
	default:
		encoded, err := wire.MarshalCanonical(d)
		if err != nil {
			return wire.Message{}, fmt.Errorf("encode data: %w", err)
		}
		msg.Data = wire.Ptr(string(encoded))
	}
	return msg, nil
}

// Expect describes the reply to one step. Only fields that are set are
// checked.
type Expect struct {
	// Outcome is "ok", "partial", "ignored" or an error code.
	Outcome string `yaml:"outcome,omitempty"`

	// Notices are the notice actions in emission order.
	Notices []string `yaml:"notices,omitempty"`

	// NoNotices asserts that the step emitted nothing.
	NoNotices bool `yaml:"no_notices,omitempty"`

	// Error is the Error tag of the first failure notice.
	Error string `yaml:"error,omitempty"`

	// Patch asserts whether an ACL patch was emitted.
	Patch *bool `yaml:"patch,omitempty"`

	// Duplicate asserts the message was answered from the log.
	Duplicate bool `yaml:"duplicate,omitempty"`
}

// Assertion validates final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Address is the address checked by acl.
	Address string `yaml:"address,omitempty"`
	// Owned and Controlled are the exact expected lists for acl.
	Owned      []string `yaml:"owned,omitempty"`
	Controlled []string `yaml:"controlled,omitempty"`

	// Entity is the entity checked by entity_present and entity_absent.
	Entity string `yaml:"entity,omitempty"`
	// Owner and Controllers, when set, are checked by entity_present;
	// owner_absent requires that the entity has no owner.
	Owner       string   `yaml:"owner,omitempty"`
	OwnerAbsent bool     `yaml:"owner_absent,omitempty"`
	Controllers []string `yaml:"controllers,omitempty"`

	// Version and ModuleID are checked by version_present and version_absent.
	Version  string `yaml:"version,omitempty"`
	ModuleID string `yaml:"module_id,omitempty"`

	// Action and Count are checked by notice_count.
	Action string `yaml:"action,omitempty"`
	Count  int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertACL            = "acl"
	AssertEntityPresent  = "entity_present"
	AssertEntityAbsent   = "entity_absent"
	AssertVersionPresent = "version_present"
	AssertVersionAbsent  = "version_absent"
	AssertNoticeCount    = "notice_count"
)

var assertionTypes = []string{
	AssertACL,
	AssertEntityPresent,
	AssertEntityAbsent,
	AssertVersionPresent,
	AssertVersionAbsent,
	AssertNoticeCount,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	switch registry.VersionScheme(s.Registry.VersionScheme) {
	case "", registry.SchemeSemver, registry.SchemeInteger:
	default:
		return fmt.Errorf("registry.version_scheme: unknown scheme %q", s.Registry.VersionScheme)
	}

	for i, step := range s.Steps {
		if step.Message.Action == "" {
			return fmt.Errorf("steps[%d]: message.action is required", i)
		}
		if step.Message.From == "" {
			return fmt.Errorf("steps[%d]: message.from is required", i)
		}
		if e := step.Expect; e != nil && e.NoNotices && len(e.Notices) > 0 {
			return fmt.Errorf("steps[%d].expect: notices and no_notices are exclusive", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertACL:
		if a.Address == "" {
			return fmt.Errorf("assertions[%d]: address is required for acl", index)
		}
	case AssertEntityPresent, AssertEntityAbsent:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for %s", index, a.Type)
		}
	case AssertVersionPresent, AssertVersionAbsent:
		if a.Version == "" {
			return fmt.Errorf("assertions[%d]: version is required for %s", index, a.Type)
		}
	case AssertNoticeCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for notice_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notice_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q (want one of %v)", index, a.Type, assertionTypes)
	}

	return nil
}
