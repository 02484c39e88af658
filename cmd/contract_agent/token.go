package main

import (
	"fmt"
	"os"

	"github.com/jonathan/contract-processor/internal/config"
	"github.com/jonathan/contract-processor/internal/server"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <client-name>",
	Short: "Issue an API bearer token",
	Long:  `Issues a bearer token for the REST API, signed with JWT_SECRET. Lifetime comes from JWT_EXPIRATION_HOURS (default 24).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, args []string) error {
	signing, err := config.NewSigningConfig()
	if err != nil {
		return err
	}
	token, err := server.NewJWTService(signing).GenerateToken(args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, token)
	return nil
}
