package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		accountFlag string
		toFlag      []string
		subjectFlag string
		bodyFlag    string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(toFlag) == 0 {
				return fmt.Errorf("--to is required")
			}

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

			acct, err := comp.db.GetAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("account not found: %s", accountID)
			}

			client, err := comp.mailClient(ctx, accountID)
			if err != nil {
				return err
			}

			raw := buildRawMessage(acct.Account.Email, toFlag, subjectFlag, bodyFlag)
			id, err := client.SendMessage(ctx, raw)
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}

			if jsonFlag {
				return printJSON(map[string]string{"id": id})
			}
			fmt.Printf("Message sent: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account email or id")
	cmd.Flags().StringSliceVar(&toFlag, "to", nil, "recipient address (repeatable)")
	cmd.Flags().StringVar(&subjectFlag, "subject", "", "message subject")
	cmd.Flags().StringVar(&bodyFlag, "body", "", "message body")
	return cmd
}

// buildRawMessage assembles a minimal RFC 2822 plain-text message.
func buildRawMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
