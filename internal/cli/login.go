package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/ambiyansyah-risyal/svcpipe/auth"
)

func newLoginCmd(a *app) *cobra.Command {
	var token, refreshToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for authenticated requests",
		Long: "Store an access token, and optionally a refresh token, in the " +
			"credentials file used by 'svcpipe request'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Access token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}

			if token == "" {
				return fmt.Errorf("token cannot be empty")
			}

			path, err := a.cfg.CredentialsPath()
			if err != nil {
				return err
			}

			tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer", RefreshToken: refreshToken}
			if exp, ok := auth.ExpiresAt(token); ok {
				tok.Expiry = exp
			}
			if err := auth.SaveFile(path, tok); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Access token (prompted if omitted)")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth2 refresh token used to renew the access token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.cfg.CredentialsPath()
			if err != nil {
				return err
			}
			store, err := auth.OpenFile(path)
			if err != nil {
				return err
			}
			store.Logout()
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials removed from %s\n", path)
			return nil
		},
	}
}
