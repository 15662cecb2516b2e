package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local identity and a first batch of prekeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dev, err := appCtx.Crypto.LocalDevice(ctx)
			if err != nil {
				return err
			}
			fp, err := appCtx.Crypto.Fingerprint(ctx)
			if err != nil {
				return err
			}

			pending, err := appCtx.Crypto.UnpublishedPrekeys(ctx)
			if err != nil {
				return err
			}
			if batch := appCtx.Config.Crypto.PrekeyBatch; len(pending) == 0 && batch > 0 {
				if _, err := appCtx.Crypto.GeneratePrekeys(ctx, batch); err != nil {
					return err
				}
				if _, err := appCtx.Crypto.GenerateFallbackKey(ctx); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Identity ready for %s (%s).\nFingerprint: %s\n",
				dev.UserID, dev.DeviceID, fp)
			return nil
		},
	}
}
