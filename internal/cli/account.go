package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanrusso/gmailvault/internal/api"
	"github.com/evanrusso/gmailvault/internal/authflow"
	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/vault"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage Gmail accounts",
	}
	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())
	return cmd
}

// staticTokens satisfies api.TokenProvider with a fixed token set. Used
// only for the profile fetch during account add, before the account
// exists in the vault.
type staticTokens struct {
	tokens *domain.TokenSet
}

func (s staticTokens) ValidateAndRefresh(ctx context.Context, accountID string) (*domain.TokenSet, error) {
	return s.tokens, nil
}

func newAccountAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Authorize a Gmail account via OAuth",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComponents()
			if err != nil {
				return err
			}
			defer comp.Close()

			cb, err := authflow.StartCallbackServer(comp.cfg.Auth.CallbackPorts)
			if err != nil {
				return err
			}
			defer cb.Close()

			auth, err := comp.coord.StartAuthorization(cb.RedirectURL())
			if err != nil {
				return err
			}

			fmt.Println("Open this URL in your browser to authorize access:")
			fmt.Println()
			fmt.Printf("  %s\n", auth.AuthURL)
			fmt.Println()
			fmt.Println("Waiting for the browser redirect...")

			timeout := authflow.WaitTimeout
			if comp.cfg.Auth.Timeout != "" {
				if d, err := time.ParseDuration(comp.cfg.Auth.Timeout); err == nil {
					timeout = d
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := cb.Wait(ctx)
			if err != nil {
				return fmt.Errorf("authorization did not complete: %w", err)
			}

			tokens, err := comp.coord.CompleteAuthorization(ctx, result.Code, result.State)
			if err != nil {
				return err
			}

			// Learn the account's email before storing anything.
			probe, err := api.New(ctx, "pending", staticTokens{tokens: tokens}, comp.limiter)
			if err != nil {
				return err
			}
			profile, err := probe.GetProfile(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch account profile: %w", err)
			}

			accountID := uuid.NewString()
			if existing, err := comp.db.GetAccountByEmail(ctx, profile.Email); err != nil {
				return err
			} else if existing != nil {
				// Re-authorizing a known account replaces its tokens.
				accountID = existing.Account.ID
			}

			info := vault.UserInfo{
				Email:       profile.Email,
				DisplayName: profile.Email,
				Scopes:      authflow.DefaultScopes,
			}
			if err := comp.vault.Store(ctx, accountID, tokens, info); err != nil {
				return fmt.Errorf("failed to store account: %w", err)
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "add", Email: profile.Email})
			}
			fmt.Printf("Account added: %s\n", profile.Email)
			return nil
		},
	}
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List authorized accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := db.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if jsonFlag {
				return printJSON(toJSONAccounts(accounts))
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts configured. Run 'gmailvault account add' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tACTIVE\tLAST_SYNC")
			for _, a := range accounts {
				lastSync := "never"
				if !a.LastSyncAt.IsZero() {
					lastSync = a.LastSyncAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", a.ID, a.Email, a.IsActive, lastSync)
			}
			return w.Flush()
		},
	}
}

func newAccountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <email-or-id>",
		Short: "Remove an account and its stored tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComponents()
			if err != nil {
				return err
			}
			defer comp.Close()

			ctx := cmd.Context()
			accountID, err := comp.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}

			if err := comp.vault.Remove(ctx, accountID); err != nil {
				return fmt.Errorf("failed to remove account: %w", err)
			}

			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "remove", Email: args[0]})
			}
			fmt.Printf("Account removed: %s\n", args[0])
			return nil
		},
	}
}
