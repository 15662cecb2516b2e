package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"roomcrypt/internal/domain"
)

func roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage room encryption",
	}

	enable := &cobra.Command{
		Use:   "enable [room]",
		Short: "Turn on encryption for a room; this cannot be undone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := appCtx.Crypto.EnableRoomEncryption(cmd.Context(), domain.RoomID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encryption enabled for %s (%s)\n", rec.RoomID, rec.Algorithm)
			return nil
		},
	}

	rotate := &cobra.Command{
		Use:   "rotate [room]",
		Short: "Retire the room's outbound session; the next message starts a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room := domain.RoomID(args[0])
			if err := appCtx.Crypto.RotateOutboundSession(cmd.Context(), room, domain.RotationManual); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Outbound session of %s rotated\n", room)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status [room]",
		Short: "Print the room's encryption state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := appCtx.Crypto.RoomStatus(cmd.Context(), domain.RoomID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.AddCommand(enable, rotate, status)
	return cmd
}
