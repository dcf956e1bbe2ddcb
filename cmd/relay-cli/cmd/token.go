package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/identity"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		userID     string
		name       string
		ttl        time.Duration
		secret     string
		secretFile string
		issuer     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development credential",
		Long: `Mint an HS256 credential the relay accepts for the given user.

The signing secret comes from --secret, --secret-file, JWT_SECRET_FILE or
JWT_SECRET, in that order.

Examples:
  relay-cli token --user alice
  relay-cli token --user bob --name "Bob" --ttl 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			key, err := resolveSecret(afero.NewOsFs(), secret, secretFile)
			if err != nil {
				return err
			}
			if issuer == "" {
				issuer = envOr("JWT_ISSUER", "chatrelay")
			}

			token, err := identity.NewVerifier(key, issuer).Issue(domain.Principal{ID: userID, DisplayName: name}, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the subject claim")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "credential lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret")
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "file holding the signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer claim, defaults to JWT_ISSUER or chatrelay")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func resolveSecret(fs afero.Fs, secret, secretFile string) (string, error) {
	if secret = strings.TrimSpace(secret); secret != "" {
		return secret, nil
	}
	if secretFile == "" {
		secretFile = os.Getenv("JWT_SECRET_FILE")
	}
	if secretFile != "" {
		return config.ReadSecretFile(fs, secretFile)
	}
	if secret = strings.TrimSpace(os.Getenv("JWT_SECRET")); secret != "" {
		return secret, nil
	}
	return "", errors.New("no signing secret: set --secret, --secret-file, JWT_SECRET_FILE or JWT_SECRET")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
