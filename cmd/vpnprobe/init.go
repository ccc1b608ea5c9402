package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/config"
)

//go:embed templates/vpnprobe.yaml
var configTemplate embed.FS

// configFileName is the default settings file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a commented .vpnprobe settings file",
		Long: `Init writes a settings file listing every option with its default value.

Examples:
  # Create .vpnprobe in the current directory
  vpnprobe init

  # Create the file at a specific path
  vpnprobe init -o ~/.vpnprobe

  # Overwrite an existing file
  vpnprobe init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName, "Output file path for the settings")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing settings file")

	return cmd
}

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
			return fmt.Errorf("settings file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/vpnprobe.yaml")
	if err != nil {
		return fmt.Errorf("failed to read settings template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created settings file: %s\n", outputPath)
	return nil
}
