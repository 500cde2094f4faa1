package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var (
		accountFlag string
		fullFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync messages into the local cache",
		Long:  "Runs an incremental sync from the last stored history cursor, or a full sync when none exists (or --full is given).",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComponents()
			if err != nil {
				return err
			}
			defer comp.Close()

			ctx := cmd.Context()
			accountID, err := comp.resolveAccount(ctx, accountFlag)
			if err != nil {
				return err
			}

			client, err := comp.mailClient(ctx, accountID)
			if err != nil {
				return err
			}

			report, err := comp.engine.Sync(ctx, accountID, client, fullFlag)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if report == nil {
				fmt.Println("A sync for this account is already running.")
				return nil
			}

			if jsonFlag {
				return printJSON(toJSONReport(report))
			}

			kind := "incremental"
			if report.Full {
				kind = "full"
			}
			fmt.Printf("Sync complete (%s): %d processed, %d failed\n", kind, report.Processed, report.Failed)
			for _, e := range report.Errors {
				fmt.Printf("  %v\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	cmd.Flags().BoolVar(&fullFlag, "full", false, "force a full sync")
	return cmd
}
