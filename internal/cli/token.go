package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/calendar2youtube/internal/models"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Subject string
	Role    string
	TTL     time.Duration
}

// NewTokenCommand creates the token command, which mints bearer tokens for the
// serve API.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long: `Sign a bearer token with JWT_SECRET for the serve API. Operators may trigger
runs; viewers may only read status and history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			issued, err := a.authService().IssueToken(opts.Subject, models.OperatorRole(opts.Role), opts.TTL)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(issued)
			}
			fmt.Fprintln(out, issued.AccessToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "operator name recorded in the token")
	cmd.Flags().StringVar(&opts.Role, "role", string(models.RoleOperator), "operator or viewer")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default JWT_EXPIRATION)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
