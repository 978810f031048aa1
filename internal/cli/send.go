package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aclreg/internal/engine"
	"github.com/roach88/aclreg/internal/wire"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Database  string
	ID        string
	From      string
	Tags      []string
	Data      string
	Reference int64
}

// SendResult is the reply to a sent message.
type SendResult struct {
	MessageID string        `json:"message_id"`
	Seq       int64         `json:"seq"`
	Outcome   string        `json:"outcome"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Notices   []wire.Notice `json:"notices"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <action>",
		Short: "Apply one message to the registry database",
		Long: `Apply one inbound message to the registry database and print the
notices it produced.

The message goes through the same engine path as the HTTP ingress: it is
routed, logged and committed in one transaction. Do not run send against a
database that a serve process is using.

Registry rejections (Unauthorized, Stale-Update, ...) are reported as
notices and are not command failures.

Examples:
  aclreg send Register --from SPAWNER --tag Process-Id=ENTITY
  aclreg send State-Notice --from ENTITY --data '{"Owner":"O","Controllers":[]}'
  aclreg send Access-Control-List --from Q --tag Address=O --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "message id (default: content hash with --reference, otherwise generated)")
	cmd.Flags().StringVar(&opts.From, "from", "", "sender address (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringArrayVarP(&opts.Tags, "tag", "t", nil, "message tag as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "message data")
	cmd.Flags().Int64Var(&opts.Reference, "reference", 0, "delivery ordering reference (default: the log sequence)")

	return cmd
}

func runSend(opts *SendOptions, action string, cmd *cobra.Command) error {
	msg, err := buildMessage(opts, action, cmd.Flags().Changed("data"), cmd.Flags().Changed("reference"))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid message", err)
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database, false)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd.Context())
	eng, err := engine.Load(ctx, st, cfg.RegistryOptions())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load registry", err)
	}

	reply := eng.Process(ctx, msg)
	if reply.Err != nil {
		return WrapExitError(ExitFailure, "message not committed", reply.Err)
	}

	result := SendResult{
		MessageID: reply.MessageID,
		Seq:       reply.Seq,
		Outcome:   reply.Outcome,
		Duplicate: reply.Duplicate,
		Notices:   reply.Notices,
	}
	if result.Notices == nil {
		result.Notices = []wire.Notice{}
	}

	if opts.Format == "json" {
		return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	printSendResult(cmd, result)
	return nil
}

// buildMessage assembles the wire message from flags.
func buildMessage(opts *SendOptions, action string, hasData, hasReference bool) (wire.Message, error) {
	msg := wire.Message{
		ID:     opts.ID,
		Action: action,
		From:   opts.From,
	}
	if len(opts.Tags) > 0 {
		msg.Tags = make(map[string]any, len(opts.Tags))
		for _, kv := range opts.Tags {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return wire.Message{}, fmt.Errorf("tag %q: want name=value", kv)
			}
			msg.Tags[name] = value
		}
	}
	if hasData {
		msg.Data = wire.Ptr(opts.Data)
	}
	if hasReference {
		msg = msg.WithReference(opts.Reference)
	}
	return msg, nil
}

func printSendResult(cmd *cobra.Command, r SendResult) {
	w := cmd.OutOrStdout()
	dup := ""
	if r.Duplicate {
		dup = " (duplicate, answered from log)"
	}
	fmt.Fprintf(w, "[%d] %s -> %s%s\n", r.Seq, r.MessageID, r.Outcome, dup)
	if len(r.Notices) == 0 {
		fmt.Fprintln(w, "  no notices")
		return
	}
	for _, n := range r.Notices {
		fmt.Fprintf(w, "  %s -> %s", n.Action, n.Target)
		if len(n.Tags) > 0 {
			fmt.Fprintf(w, " %v", n.Tags)
		}
		fmt.Fprintln(w)
		if n.Data != "" {
			fmt.Fprintf(w, "    %s\n", n.Data)
		}
	}
}
