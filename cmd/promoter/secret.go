package main

import (
	"fmt"

	"promoter/internal/security"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a server secret",
	Long: `Generate a random secret suitable for server.secret.

Clients sign request bodies with it and send the result in the
X-Promoter-Signature header as "sha256=<hex>".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		fmt.Println(secret)
		return nil
	},
}
