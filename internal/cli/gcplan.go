package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aclreg/internal/config"
	"github.com/roach88/aclreg/internal/engine"
	"github.com/roach88/aclreg/internal/store"
	"github.com/roach88/aclreg/internal/wire"
)

// GCPlanOptions holds flags for the gc-plan command.
type GCPlanOptions struct {
	*RootOptions
	Database string
	Keep     string
	Limit    int
	Apply    bool
}

// GCBatch is one planned Batch-Unregister and, when applied, its outcome.
type GCBatch struct {
	IDs     []string `json:"ids"`
	Outcome string   `json:"outcome,omitempty"`
}

// GCPlan lists the registered entities missing from the keep-list.
type GCPlan struct {
	Registered int       `json:"registered"`
	Kept       int       `json:"kept"`
	Candidates int       `json:"candidates"`
	Batches    []GCBatch `json:"batches"`
	Applied    bool      `json:"applied"`
}

// NewGCPlanCommand creates the gc-plan command.
func NewGCPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GCPlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gc-plan",
		Short: "Plan Batch-Unregister calls for entities not in a keep-list",
		Long: `Compute the registered entities that are absent from a keep-list and
split them into Batch-Unregister payloads no larger than the registry's
max_batch_size.

The keep-list is either a JSON array of entity ids or one id per line
(blank lines and lines starting with # are ignored).

With --apply, each batch is sent as a Batch-Unregister from the configured
registry owner and its outcome is reported.

Examples:
  aclreg gc-plan --db ./aclreg.db --keep ./live-entities.txt
  aclreg gc-plan --db ./aclreg.db --keep ./live.json --limit 200 --apply`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGCPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Keep, "keep", "", "file listing entity ids to keep (required)")
	_ = cmd.MarkFlagRequired("keep")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "batch size (default and maximum: registry max_batch_size)")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "send the planned batches")

	return cmd
}

func runGCPlan(opts *GCPlanOptions, cmd *cobra.Command) error {
	keep, err := readKeepList(opts.Keep)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read keep-list", err)
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	limit := cfg.Registry.MaxBatchSize
	if opts.Limit > 0 && opts.Limit < limit {
		limit = opts.Limit
	}

	st, err := openStore(cfg.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd.Context())
	reg, err := loadRegistry(ctx, st, cfg.RegistryOptions())
	if err != nil {
		return err
	}

	var registered []string
	for _, e := range reg.Entities() {
		registered = append(registered, e.EntityID)
	}
	plan := PlanCollection(registered, keep, limit)

	if opts.Apply && len(plan.Batches) > 0 {
		if err := applyPlan(ctx, st, cfg, &plan); err != nil {
			return err
		}
	}

	if opts.Format == "json" {
		return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: plan})
	}
	outputGCPlanText(cmd, plan)
	return nil
}

// PlanCollection returns the ids of registered that are not in keep, in
// registered order, chunked into batches of at most limit ids.
func PlanCollection(registered []string, keep map[string]struct{}, limit int) GCPlan {
	plan := GCPlan{Registered: len(registered), Batches: []GCBatch{}}
	var candidates []string
	for _, id := range registered {
		if _, ok := keep[id]; ok {
			plan.Kept++
			continue
		}
		candidates = append(candidates, id)
	}
	plan.Candidates = len(candidates)
	if limit <= 0 {
		limit = len(candidates)
	}
	for chunk := range slices.Chunk(candidates, max(limit, 1)) {
		plan.Batches = append(plan.Batches, GCBatch{IDs: chunk})
	}
	return plan
}

// applyPlan sends every batch through the engine as the registry owner.
func applyPlan(ctx context.Context, st *store.Store, cfg *config.Config, plan *GCPlan) error {
	eng, err := engine.Load(ctx, st, cfg.RegistryOptions())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load registry", err)
	}
	for i := range plan.Batches {
		data, err := wire.MarshalCanonical(plan.Batches[i].IDs)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode batch", err)
		}
		reply := eng.Process(ctx, wire.Message{
			Action: wire.ActionBatchUnregister,
			From:   cfg.Registry.Owner,
			Data:   wire.Ptr(string(data)),
		})
		if reply.Err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("batch %d not committed", i+1), reply.Err)
		}
		plan.Batches[i].Outcome = reply.Outcome
	}
	plan.Applied = true
	return nil
}

// readKeepList parses a JSON array of ids or a line-per-id file.
func readKeepList(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{})

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, id := range ids {
			keep[id] = struct{}{}
		}
		return keep, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keep[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keep, nil
}

func outputGCPlanText(cmd *cobra.Command, plan GCPlan) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d registered, %d kept, %d to unregister in %d batch(es)\n",
		plan.Registered, plan.Kept, plan.Candidates, len(plan.Batches))
	for i, b := range plan.Batches {
		data, _ := wire.MarshalCanonical(b.IDs)
		if b.Outcome != "" {
			fmt.Fprintf(w, "batch %d (%d ids) -> %s\n", i+1, len(b.IDs), b.Outcome)
			continue
		}
		fmt.Fprintf(w, "batch %d (%d ids): %s\n", i+1, len(b.IDs), data)
	}
}
