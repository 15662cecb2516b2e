package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"roomcrypt/internal/domain"
)

func deviceKey(args []string) domain.DeviceKey {
	return domain.DeviceKey{UserID: domain.UserID(args[0]), DeviceID: domain.DeviceID(args[1])}
}

func trustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Read or change the trust state of a remote device",
	}

	get := &cobra.Command{
		Use:   "get [user] [device]",
		Short: "Print a device's trust state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := appCtx.Crypto.DeviceTrust(cmd.Context(), deviceKey(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set [user] [device] [unverified|verified|blocked]",
		Short: "Change a device's trust state",
		Long:  "Change a device's trust state. Blocking a device rotates every room session it holds.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := appCtx.Crypto.SetDeviceTrust(cmd.Context(), deviceKey(args), domain.TrustState(args[2]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s\n", rec.UserID, rec.DeviceID, rec.State)
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices [user]",
		Short: "List the tracked devices of a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := appCtx.Crypto.Devices(cmd.Context(), domain.UserID(args[0]))
			if err != nil {
				return err
			}
			if devs == nil {
				devs = []domain.DeviceIdentity{}
			}
			return printJSON(cmd.OutOrStdout(), devs)
		},
	}
}
