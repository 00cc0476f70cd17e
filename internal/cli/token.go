package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-sync/pkg/jwt"
)

func NewTokenCmd(deps *Dependencies) *cobra.Command {
	var user, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long:  "Mint an access token signed with the hub's shared secret. The user name\nbecomes the participant name other members see.",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := deps.Config.Auth
			if secret == "" {
				secret = auth.Secret
			}
			if ttl == 0 {
				ttl = auth.AccessDuration
			}
			if user == "" {
				user = deps.Config.Participant.Name
			}
			if user == "" {
				return errors.New("a user name is required (--user)")
			}

			m, err := jwt.NewManager(secret, ttl, auth.Issuer)
			if err != nil {
				return err
			}
			tok, expires, err := m.GenerateAccessToken(user, user)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User name (default participant.name)")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Signing secret (default auth.secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.access_duration)")

	return cmd
}
