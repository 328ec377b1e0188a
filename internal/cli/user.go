package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/storage"
)

func newUserCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the user directory",
	}

	cmd.AddCommand(newUserAddCmd(s))

	return cmd
}

func newUserAddCmd(s *settings) *cobra.Command {
	var username, displayName string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a user and their display name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("--username must not be blank")
			}

			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close(db) }()

			if err := storage.NewUserDirectory(db).Add(cmd.Context(), username, displayName); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved user %q.\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "identity used in tokens")
	cmd.Flags().StringVar(&displayName, "display-name", "", "name shown in messages (defaults to the username)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
