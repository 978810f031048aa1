package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/aclreg/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Messages      int               `json:"messages"`
	Mismatches    []engine.Mismatch `json:"mismatches"`
	ReplayedHash  string            `json:"replayed_hash"`
	StoredHash    string            `json:"stored_hash"`
	Deterministic bool              `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the message log and verify determinism",
		Long: `Replay the message log through a fresh registry and verify determinism.

Every logged message is routed again in log order. Its outcome and notices
must match what was recorded, and the rebuilt state must hash to the same
value as the persisted state.

Exit codes:
  0 - Replay reproduced the log and the state
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  aclreg replay --db ./aclreg.db
  aclreg replay --db ./aclreg.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := engine.Replay(commandContext(cmd.Context()), st, cfg.RegistryOptions())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay message log", err)
	}

	result := ReplayResult{
		Messages:      report.Messages,
		Mismatches:    report.Mismatches,
		ReplayedHash:  report.ReplayedHash,
		StoredHash:    report.StoredHash,
		Deterministic: report.Deterministic(),
	}
	if result.Mismatches == nil {
		result.Mismatches = []engine.Mismatch{}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeDeterminism,
			Message: "determinism verification failed",
		}
	}

	if err := writeResponse(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d message(s)\n", result.Messages)
	if verbose {
		fmt.Fprintf(w, "  Replayed state: %s\n", result.ReplayedHash)
		fmt.Fprintf(w, "  Stored state:   %s\n", result.StoredHash)
	}

	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "✗ [%d] %s %s: %s\n", m.Seq, m.Action, m.ID, m.Reason)
	}
	if result.ReplayedHash != result.StoredHash {
		fmt.Fprintln(w, "✗ Rebuilt state differs from the persisted state")
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Message log verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
