package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/reviewgate/internal/config"
	"github.com/spf13/cobra"
)

// NewPurgeCmd creates the purge command.
func NewPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete bundles past their retention date",
		Long: `Purge deletes every stored session whose retention date has passed,
together with its records. Run it regularly, for example from cron.

Examples:
  reviewgate purge
  reviewgate purge --db-driver postgres --db-dsn "postgres://..."`,
		Args: cobra.NoArgs,
		RunE: runPurgeCmd,
	}

	addConfigFlag(cmd)
	addDBFlags(cmd)

	return cmd
}

// runPurgeCmd executes the purge command.
func runPurgeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDBFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	return runPurge(cmd.Context(), cfg, time.Now(), cmd.OutOrStdout())
}

// runPurge deletes sessions that expired before now.
func runPurge(ctx context.Context, cfg *config.Config, now time.Time, out io.Writer) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to purge expired bundles: %w", err)
	}
	_, err = fmt.Fprintf(out, "Purged %d expired session(s).\n", n)
	return err
}
