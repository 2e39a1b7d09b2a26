package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/reviewgate/internal/config"
	"github.com/nao1215/reviewgate/internal/database"
	"github.com/spf13/cobra"
)

// historyTimeFormat is how times are shown in the history table.
const historyTimeFormat = "2006-01-02 15:04"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List stored crawl sessions",
		Long: `History lists the sessions stored in the database, newest first.
Give a target to list only the sessions for that venue name or URL.

Examples:
  reviewgate history
  reviewgate history 全聚德`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	addConfigFlag(cmd)
	addDBFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDBFlags(cmd.Flags(), cfg); err != nil {
		return err
	}

	target := ""
	if len(args) == 1 {
		target = args[0]
	}
	return runHistory(cmd.Context(), cfg, target, cmd.OutOrStdout())
}

// runHistory prints stored sessions as a Markdown table.
func runHistory(ctx context.Context, cfg *config.Config, target string, out io.Writer) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.ListSessions(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(out, "No stored sessions.")
		return err
	}

	return historyTable(out, sessions)
}

func historyTable(out io.Writer, sessions []database.SessionSummary) error {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.SessionID,
			s.Target,
			s.Status.String(),
			s.Reason,
			strconv.Itoa(s.TotalRecords),
			strconv.Itoa(s.PagesFetched),
			s.CollectionTime.Local().Format(historyTimeFormat),
			s.RetentionUntil.Local().Format(historyTimeFormat),
		})
	}

	return markdown.NewMarkdown(out).
		Table(markdown.TableSet{
			Header: []string{"Session", "Target", "Status", "Reason", "Records", "Pages", "Collected", "Retain Until"},
			Rows:   rows,
		}).
		Build()
}
