package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"roomcrypt/internal/app"
)

var (
	configPath string
	appCtx     *app.App
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "roomcrypt",
		Short:        "End-to-end encryption keys and room sessions for one device",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx != nil {
				// Left open by a previous command that failed.
				_ = appCtx.Close()
			}
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			appCtx, err = app.New(cmd.Context(), cfg, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			err := appCtx.Close()
			appCtx = nil
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./roomcrypt.yaml or ~/.roomcrypt/roomcrypt.yaml)")

	root.AddCommand(initCmd(), fingerprintCmd(), prekeysCmd(), trustCmd(), devicesCmd(), roomCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
