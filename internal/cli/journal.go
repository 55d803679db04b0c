package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/amlkernel/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Changes bool
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal [db]",
		Short: "List the transactions recorded in a journal",
		Long: `List the notification transactions recorded in a SQLite journal.

The path defaults to the configured journal. Use --changes to print every
recorded event under its transaction.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.settings().Journal
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return NewExitError(ExitCommandError, "no journal given and none configured")
			}
			return runJournal(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Changes, "changes", false, "include recorded changes")
	return cmd
}

// journalEntry is a transaction with its changes, for JSON output.
type journalEntry struct {
	journal.Transaction
	Entries []journal.Change `json:"entries,omitempty"`
}

func runJournal(cmd *cobra.Command, path string, opts *JournalOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	j, err := journal.Open(path, journal.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	txs, err := j.Transactions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	entries := make([]journalEntry, 0, len(txs))
	for _, tx := range txs {
		e := journalEntry{Transaction: tx}
		if opts.Changes {
			e.Entries, err = j.Changes(ctx, tx.Seq)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read journal", err)
			}
		}
		entries = append(entries, e)
	}

	if opts.settings().Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: entries})
	}
	return outputJournalText(cmd.OutOrStdout(), entries)
}

func outputJournalText(w io.Writer, entries []journalEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no transactions recorded")
		return nil
	}
	for _, e := range entries {
		undo := ""
		if e.Compensating {
			undo = " (undo)"
		}
		fmt.Fprintf(w, "#%d %s %d change(s)%s\n", e.Seq, e.Session, e.Changes, undo)
		for _, c := range e.Entries {
			fmt.Fprintf(w, "    %s\n", c.Line)
		}
	}
	return nil
}
