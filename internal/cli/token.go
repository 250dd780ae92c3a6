package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quiz-arena-service/internal/auth"
	"quiz-arena-service/internal/config"
)

// NewTokenCmd issues a player token signed with the configured secret, for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var player, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a player token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			issuer, err := auth.NewIssuer(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
			if err != nil {
				return err
			}
			if player == "" {
				player = uuid.NewString()
			}
			token, err := issuer.Issue(player, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&player, "player", "", "player id (random when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
