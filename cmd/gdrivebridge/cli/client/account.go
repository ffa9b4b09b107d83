package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NiksRock/GDriveBridge/pkg/db/models"
)

func NewAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage connected Drive accounts",
		Long:  "Register and inspect the Google Drive accounts available as transfer endpoints.",
	}

	cmd.AddCommand(newAccountAddCommand())

	return cmd
}

func newAccountAddCommand() *cobra.Command {
	var userID string
	var email string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a Drive account",
		Long:  "Register a Drive account by storing its encrypted refresh token. The token is obtained out-of-band through the OAuth consent flow.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			encrypted, err := env.cipher.Encrypt(refreshToken)
			if err != nil {
				return fmt.Errorf("failed to encrypt refresh token: %w", err)
			}

			account := &models.Account{
				ID:                    uuid.NewString(),
				UserID:                userID,
				Email:                 email,
				RefreshTokenEncrypted: encrypted,
				LastQuotaReset:        time.Now().UTC(),
			}
			if err := env.store.CreateAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to store account: %w", err)
			}

			fmt.Printf("Registered account %s (%s)\n", account.ID, email)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token for the account")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("refresh-token")

	return cmd
}
