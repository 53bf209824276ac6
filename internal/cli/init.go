package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stancewatch/internal/config"
)

var (
	initPath  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "", "Where to write the config (default ~/.stancewatch/config.yaml)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a commented default configuration",
	Long: `Creates the config directory and a commented config.yaml with the built-in defaults.

Set ack.secret (or STANCEWATCH_ACK_SECRET) before running the server:
pending acknowledgments do not survive a restart with an ephemeral secret.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		path = config.DefaultPath()
		if path == "" {
			return fmt.Errorf("cannot determine home directory; use --path")
		}
	}

	wrote, err := writeIfMissing(path, config.DefaultYAML())
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Created: %s\n", path)
	} else {
		fmt.Printf("%s already exists (use --force to overwrite).\n", path)
	}
	fmt.Println()
	fmt.Println("Try:")
	fmt.Println("  stancewatch eval \"Should I put all my savings into one stock?\"")
	fmt.Println("  stancewatch serve")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
