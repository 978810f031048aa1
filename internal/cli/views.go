package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aclreg/internal/registry"
)

// ViewOptions holds flags shared by the read-only views.
type ViewOptions struct {
	*RootOptions
	Database string
}

// ACLEntry is one address in the acl view.
type ACLEntry struct {
	Address    string   `json:"address"`
	Owned      []string `json:"owned"`
	Controlled []string `json:"controlled"`
}

// NewACLCommand creates the acl command.
func NewACLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "acl [address]",
		Short: "Show the entities an address owns and controls",
		Long: `Show the access-control list derived from the registry.

With an address, prints that address's owned and controlled entities
(empty lists when it has none). Without, prints every address that owns or
controls at least one entity.

Examples:
  aclreg acl --db ./aclreg.db
  aclreg acl OWNER_ADDRESS --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openView(opts, cmd)
			if err != nil {
				return err
			}
			var entries []ACLEntry
			if len(args) == 1 {
				entries = []ACLEntry{aclEntry(args[0], reg.ACL(args[0]))}
			} else {
				snap := reg.ACLSnapshot()
				entries = make([]ACLEntry, 0, len(snap))
				for _, address := range slices.Sorted(maps.Keys(snap)) {
					entries = append(entries, aclEntry(address, snap[address]))
				}
			}
			return outputACL(cmd, opts.Format, entries)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	return cmd
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the module version catalog",
		Long: `List the module version catalog in version order.

Under the semver scheme versions are ordered by semantic version precedence
(pre-releases before their release); under the integer scheme numerically.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openView(opts, cmd)
			if err != nil {
				return err
			}
			versions := reg.SortedVersions()
			if opts.Format == "json" {
				return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: versions})
			}
			w := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintln(w, "No versions cataloged.")
				return nil
			}
			for _, v := range versions {
				fmt.Fprintf(w, "%s\t%s", v.Version, v.ModuleID)
				if v.SourceID != "" {
					fmt.Fprintf(w, "\tsource=%s", v.SourceID)
				}
				if v.Notes != "" {
					fmt.Fprintf(w, "\t%q", v.Notes)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	return cmd
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "entities",
		Short:         "List registered entities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openView(opts, cmd)
			if err != nil {
				return err
			}
			entities := reg.Entities()
			if opts.Format == "json" {
				return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: entities})
			}
			w := cmd.OutOrStdout()
			if len(entities) == 0 {
				fmt.Fprintln(w, "No entities registered.")
				return nil
			}
			for _, e := range entities {
				owner := e.OwnerAddress()
				if owner == "" {
					owner = "-"
				}
				seq := "-"
				if e.LastSequence != nil {
					seq = fmt.Sprint(*e.LastSequence)
				}
				fmt.Fprintf(w, "%s\towner=%s\tcontrollers=[%s]\tlast_sequence=%s\n",
					e.EntityID, owner, strings.Join(e.Controllers, ","), seq)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	return cmd
}

// openView loads the persisted registry for a read-only view.
func openView(opts *ViewOptions, cmd *cobra.Command) (*registry.Registry, error) {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg.Database, true)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return loadRegistry(commandContext(cmd.Context()), st, cfg.RegistryOptions())
}

func aclEntry(address string, a registry.Affiliations) ACLEntry {
	return ACLEntry{Address: address, Owned: a.Owned, Controlled: a.Controlled}
}

func outputACL(cmd *cobra.Command, format string, entries []ACLEntry) error {
	if format == "json" {
		return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: entries})
	}
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No addresses own or control entities.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(w, e.Address)
		fmt.Fprintf(w, "  owned:      [%s]\n", strings.Join(e.Owned, ", "))
		fmt.Fprintf(w, "  controlled: [%s]\n", strings.Join(e.Controlled, ", "))
	}
	return nil
}
