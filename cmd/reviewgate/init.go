package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/reviewgate/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/reviewgate.yaml
var configTemplate embed.FS

// templatePath is the embedded template location.
const templatePath = "templates/reviewgate.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new reviewgate configuration file",
		Long: `Initialize creates a new .reviewgate configuration file in the current directory.

The generated file includes:
- Default pacing, volume and retention settings
- Commented storage and proxy settings
- An example of per-site cookies and overrides

Examples:
  # Create .reviewgate in current directory
  reviewgate init

  # Create config file at a specific path
  reviewgate init -o myconfig.yaml

  # Force overwrite existing file
  reviewgate init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := loadTemplate()
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Collection purpose and pacing limits")
	fmt.Fprintln(out, "  - Per-site cookies, headers and delays")
	fmt.Fprintln(out, "  - Storage and retention")

	return nil
}

// loadTemplate reads the embedded template and checks that it parses.
func loadTemplate() ([]byte, error) {
	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}
	var parsed config.File
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("config template is not valid YAML: %w", err)
	}
	return content, nil
}
