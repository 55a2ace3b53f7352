package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	provider "github.com/noah-isme/calendar2youtube/internal/provider/google"
	"github.com/noah-isme/calendar2youtube/pkg/oauth"
)

// NewAuthCommand creates the auth command, which runs the OAuth consent flow
// and stores the resulting token.
func NewAuthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorise calendar and YouTube access",
		Long: `Print the Google consent URL, read the pasted redirect URL or code, and store
the token in the configured TOKEN_STORE. Only GOOGLE_CREDENTIALS_FILE is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Google.CredentialsFile == "" {
				return NewExitError(ExitCommandError, "GOOGLE_CREDENTIALS_FILE is required")
			}
			oauthCfg, err := oauth.LoadConfig(a.cfg.Google.CredentialsFile, provider.Scopes...)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load google credentials", err)
			}
			store, err := a.tokenStore(ctx)
			if err != nil {
				return err
			}

			token, err := oauth.Consent(ctx, oauthCfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return WrapExitError(ExitCommandError, "authorisation failed", err)
			}
			if err := store.Save(ctx, token); err != nil {
				return WrapExitError(ExitCommandError, "failed to store oauth token", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored (%s).\n", a.cfg.Google.TokenStore)
			return nil
		},
	}
}
