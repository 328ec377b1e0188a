package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/storage"
)

func newRoomCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage the room registry",
	}

	cmd.AddCommand(
		newRoomCreateCmd(s),
		newRoomListCmd(s),
	)

	return cmd
}

func newRoomCreateCmd(s *settings) *cobra.Command {
	var room storage.RoomRecord

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close(db) }()

			created, err := storage.NewRoomRegistry(db).Create(cmd.Context(), room)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", created.RoomID, created.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&room.Name, "name", "", "room name")
	cmd.Flags().StringVar(&room.RoomID, "id", "", "room id (generated when empty)")
	cmd.Flags().StringVar(&room.Description, "description", "", "room description")
	cmd.Flags().StringVar(&room.CreatedBy, "created-by", "", "creator identity")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRoomListCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms, most recently active first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.load(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close(db) }()

			rooms, err := storage.NewRoomRegistry(db).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No rooms.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tPARTICIPANTS\tDESCRIPTION")
			for _, r := range rooms {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.RoomID, r.Name, r.ParticipantCount, r.Description)
			}
			return tw.Flush()
		},
	}
}
