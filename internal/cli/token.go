package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/auth"
)

func newTokenCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and revoke bearer tokens",
	}

	cmd.AddCommand(
		newTokenIssueCmd(s),
		newTokenRevokeCmd(s),
	)

	return cmd
}

func newTokenIssueCmd(s *settings) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}
			tokens, err := newTokenValidator(cfg.Auth, nil, logger)
			if err != nil {
				return err
			}

			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := tokens.IssueWithTTL(strings.TrimSpace(user), ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "identity carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newTokenRevokeCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token on every server instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}

			rdb, err := connectRedis(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()

			tokens, err := newTokenValidator(cfg.Auth, auth.NewRedisRevocationList(rdb), logger)
			if err != nil {
				return err
			}
			if err := tokens.Revoke(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
}
