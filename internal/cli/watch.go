package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	mailsync "github.com/evanrusso/gmailvault/internal/sync"
)

func newWatchCmd() *cobra.Command {
	var (
		accountFlag string
		topicFlag   string
		stopFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the mailbox push subscription",
		Long:  "Registers (or, with --stop, tears down) a Gmail push subscription that publishes change notifications to a Pub/Sub topic.",
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

			if stopFlag {
				if err := comp.engine.StopWatch(ctx, accountID, client); err != nil {
					return err
				}
				fmt.Println("Push subscription stopped.")
				return nil
			}

			if topicFlag == "" {
				return fmt.Errorf("--topic is required (a Pub/Sub topic like projects/<project>/topics/<name>)")
			}

			subID, expires, err := comp.engine.Watch(ctx, accountID, client, topicFlag, nil)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(map[string]string{
					"subscription_id": subID,
					"expires":         expires.Format(time.RFC3339),
				})
			}
			fmt.Printf("Watching mailbox; subscription %s expires %s\n", subID, expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	cmd.Flags().StringVar(&topicFlag, "topic", "", "Pub/Sub topic to publish notifications to")
	cmd.Flags().BoolVar(&stopFlag, "stop", false, "stop the active subscription")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the push notification endpoint",
		Long:  "Runs an HTTP endpoint that ingests Pub/Sub push deliveries of Gmail change notifications and triggers incremental syncs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComponents()
			if err != nil {
				return err
			}
			defer comp.Close()

			dial := func(ctx context.Context, accountID string) (mailsync.Mail, error) {
				return comp.mailClient(ctx, accountID)
			}
			handler := mailsync.NewPushHandler(comp.engine, comp.db, dial)

			mux := http.NewServeMux()
			mux.Handle("/notifications", handler)

			srv := &http.Server{
				Addr:              addrFlag,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			fmt.Printf("Listening for push notifications on %s\n", addrFlag)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "127.0.0.1:8078", "listen address")
	return cmd
}
