package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/action-gate/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		roles   []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator bearer token",
		Long:  `Signs a token with AUTH_JWT_SECRET for the given subject and roles (operator, approver, admin).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			for _, r := range roles {
				if !auth.IsKnownRole(r) {
					return fmt.Errorf("unknown role %q", r)
				}
			}

			token, err := tokens.Issue(subject, roles...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator identity carried as the token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleOperator}, "role to grant; repeatable")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
