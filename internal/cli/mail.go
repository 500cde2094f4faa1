package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evanrusso/gmailvault/internal/app"
	"github.com/evanrusso/gmailvault/internal/store"
)

func newMessagesCmd() *cobra.Command {
	var (
		accountFlag string
		labelFlag   string
		limitFlag   int
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List cached messages",
		Long:  "Lists messages from the local cache. Never touches the network.",
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

			reader := app.NewMessageReader(comp.cache, nil)
			messages, err := reader.List(ctx, store.QueryOptions{
				AccountID: accountID,
				Label:     labelFlag,
				Limit:     limitFlag,
			})
			if err != nil {
				return fmt.Errorf("failed to list messages: %w", err)
			}

			if jsonFlag {
				return printJSON(toJSONMessages(messages))
			}

			if len(messages) == 0 {
				fmt.Println("No cached messages. Run 'gmailvault sync' first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tSUBJECT\tDATE\tID")
			for _, m := range messages {
				from := m.From.Name
				if from == "" {
					from = m.From.Email
				}
				if len(from) > 30 {
					from = from[:27] + "..."
				}
				subject := m.Subject
				if len(subject) > 50 {
					subject = subject[:47] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					from, subject, m.Date.Format("Jan 2, 2006"), m.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	cmd.Flags().StringVar(&labelFlag, "label", "", "filter by label (INBOX, STARRED, ...)")
	cmd.Flags().IntVar(&limitFlag, "limit", 25, "max messages to show")
	return cmd
}

func newAttachmentCmd() *cobra.Command {
	var (
		accountFlag string
		outFlag     string
	)

	cmd := &cobra.Command{
		Use:   "attachment <message-id> <attachment-id>",
		Short: "Download an attachment",
		Args:  cobra.ExactArgs(2),
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

			data, err := client.GetAttachment(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to download attachment: %w", err)
			}

			if outFlag == "" || outFlag == "-" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outFlag, data, 0o600); err != nil {
				return fmt.Errorf("failed to write attachment: %w", err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), outFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	cmd.Flags().StringVarP(&outFlag, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newLabelsCmd() *cobra.Command {
	var accountFlag string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List mailbox labels",
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

			labels, err := client.ListLabels(ctx)
			if err != nil {
				return fmt.Errorf("failed to list labels: %w", err)
			}

			if jsonFlag {
				return printJSON(labels)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE")
			for _, l := range labels {
				fmt.Fprintf(w, "%s\t%s\t%s\n", l.ID, l.Name, l.Type)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	return cmd
}

func newShowCmd() *cobra.Command {
	var accountFlag string

	cmd := &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show a message",
		Long:  "Displays a message from the cache, fetching it from Gmail on a miss.",
		Args:  cobra.ExactArgs(1),
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

			reader := app.NewMessageReader(comp.cache, client)
			msg, err := reader.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load message: %w", err)
			}
			if msg == nil {
				return fmt.Errorf("message not found: %s", args[0])
			}

			if jsonFlag {
				return printJSON(toJSONMessage(msg))
			}

			fmt.Printf("From:    %s\n", msg.From)
			for i, to := range msg.To {
				if i == 0 {
					fmt.Printf("To:      %s\n", to)
				} else {
					fmt.Printf("         %s\n", to)
				}
			}
			fmt.Printf("Date:    %s\n", msg.Date.Format("Mon, 2 Jan 2006 15:04"))
			fmt.Printf("Subject: %s\n", msg.Subject)
			if len(msg.Attachments) > 0 {
				fmt.Printf("Attachments:\n")
				for _, a := range msg.Attachments {
					fmt.Printf("  %s (%s, %d bytes)\n", a.Filename, a.MIMEType, a.Size)
				}
			}
			fmt.Println()
			fmt.Println(msg.BodyText)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	return cmd
}
