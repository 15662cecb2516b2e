package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"roomcrypt/internal/domain"
)

func prekeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prekeys",
		Short: "Manage one-time and fallback prekeys",
	}

	var count int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate signed one-time prekeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count == 0 {
				count = appCtx.Config.Crypto.PrekeyBatch
			}
			keys, err := appCtx.Crypto.GeneratePrekeys(cmd.Context(), count)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d prekeys\n", len(keys))
			return nil
		},
	}
	generate.Flags().IntVarP(&count, "count", "n", 0, "number of prekeys (default from config)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print unpublished prekeys as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := appCtx.Crypto.UnpublishedPrekeys(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), keys)
		},
	}

	publish := &cobra.Command{
		Use:   "publish",
		Short: "Print unpublished prekeys as JSON and mark them published",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			keys, err := appCtx.Crypto.UnpublishedPrekeys(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), keys); err != nil {
				return err
			}
			ids := make([]domain.PrekeyID, 0, len(keys))
			for _, k := range keys {
				ids = append(ids, k.KeyID)
			}
			return appCtx.Crypto.MarkPrekeysPublished(ctx, ids)
		},
	}

	fallback := &cobra.Command{
		Use:   "fallback",
		Short: "Rotate the fallback prekey",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := appCtx.Crypto.GenerateFallbackKey(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fallback prekey %s\n", key.KeyID)
			return nil
		},
	}

	cmd.AddCommand(generate, list, publish, fallback)
	return cmd
}
