package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"promoter/internal/build"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Record a staged build",
	Long: `Record a staged build from its JSON build document.

The files listed in the document must already be stored; their checksums are
read from the store. Use "-" to read the document from stdin.

Example:
  promoter import build-info.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open build document: %w", err)
		}
		defer f.Close()
		in = f
	}

	var b build.Build
	if err := json.NewDecoder(in).Decode(&b); err != nil {
		return fmt.Errorf("failed to parse build document: %w", err)
	}

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	for _, f := range b.Files {
		if _, err := svc.repos.Get(f.RepoPath.Repo); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := svc.builds.Import(ctx, &b, svc.store); err != nil {
		return err
	}

	fmt.Printf("Imported build %s (started %s, %d files)\n", b.Run(), b.Started, len(b.Files))
	return nil
}
