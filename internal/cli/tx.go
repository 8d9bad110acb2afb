package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/stampview/internal/txn"
)

// TxSummary describes one active transaction.
type TxSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Stamps     int    `json:"stamps"`
	Components int    `json:"components"`
}

// TxOutcome reports a commit or cancel.
type TxOutcome struct {
	ID       string  `json:"id"`
	Outcome  string  `json:"outcome"`
	Stamps   int     `json:"stamps"`
	Concepts []int32 `json:"concepts"`
}

// NewTxCommand creates the tx command and its subcommands.
func NewTxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect and resolve saved transactions",
		Long: `Inspect and resolve the active transactions saved under root_dir.

Transactions left open when an engine closes are written to the
transactions file and restored on the next start. Committing assigns the
current time to every pending stamp; canceling tombstones them.`,
	}
	cmd.AddCommand(
		newTxListCommand(rootOpts),
		newTxResolveCommand(rootOpts, "commit", "Commit an active transaction", (*txn.Transaction).Commit),
		newTxResolveCommand(rootOpts, "cancel", "Cancel an active transaction", (*txn.Transaction).Cancel),
	)
	return cmd
}

// openTxSession opens a session that persists transactions.
func openTxSession(opts *RootOptions) (*session, error) {
	if opts.Config.RootDir == "" {
		return nil, NewExitError(ExitCommandError, "transactions are only persisted when root_dir is set")
	}
	return openSession(opts)
}

func newTxListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openTxSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			active := s.engine.Transactions().Active()
			out := make([]TxSummary, 0, len(active))
			for _, t := range active {
				out = append(out, TxSummary{
					ID:         t.ID().String(),
					Name:       t.Name(),
					Stamps:     len(t.StampUUIDs()),
					Components: t.Components().Len(),
				})
			}
			return newPrinter(rootOpts, cmd).Print(out, func(w io.Writer) {
				if len(out) == 0 {
					fmt.Fprintln(w, "No active transactions.")
					return
				}
				for _, t := range out {
					fmt.Fprintf(w, "%s\t%s\t%d stamps\t%d components\n", t.ID, t.Name, t.Stamps, t.Components)
				}
			})
		},
	}
}

func newTxResolveCommand(rootOpts *RootOptions, use, short string,
	resolve func(*txn.Transaction, context.Context) (int, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <transaction-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd)
			id, err := uuid.Parse(args[0])
			if err != nil {
				return p.Fail(ExitCommandError, CodeInvalidArg, fmt.Sprintf("invalid transaction id %q", args[0]))
			}
			s, err := openTxSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.engine.Transactions().Lookup(id)
			if err != nil {
				return p.Fail(ExitFailure, CodeNotFound, err.Error())
			}
			concepts, err := s.engine.AffectedConcepts(cmd.Context(), t)
			if err != nil {
				return p.Fail(ExitFailure, CodeInternalError, err.Error())
			}
			n, err := resolve(t, cmd.Context())
			if err != nil {
				return p.Fail(ExitFailure, CodeInternalError, err.Error())
			}

			res := TxOutcome{ID: id.String(), Outcome: t.State().String(), Stamps: n, Concepts: concepts.ToArray()}
			return p.Print(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s: %d stamps, %d concepts\n", res.Outcome, res.ID, res.Stamps, len(res.Concepts))
			})
		},
	}
}
