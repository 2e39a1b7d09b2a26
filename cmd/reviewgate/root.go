package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for reviewgate.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewgate",
		Short: "Compliance-gated review collection for research",
		Long: `reviewgate collects a small, anonymized sample of public venue reviews
for research, learning and academic use.

Every request is checked against robots.txt and paced per domain. Reviewer
identities are hashed, personal details are scrubbed from review text, and
stored bundles carry a retention date after which "reviewgate purge" deletes them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewPOICmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
