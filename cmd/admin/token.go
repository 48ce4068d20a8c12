package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cvforge/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var privateKeyPath, publicKeyPath string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Issue a short-lived access token for debugging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			privatePEM, err := os.ReadFile(firstNonEmpty(privateKeyPath, os.Getenv("JWT_PRIVATE_KEY_PATH")))
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			publicPEM, err := os.ReadFile(firstNonEmpty(publicKeyPath, os.Getenv("JWT_PUBLIC_KEY_PATH")))
			if err != nil {
				return fmt.Errorf("read public key: %w", err)
			}
			svc, err := auth.NewAuthService(privatePEM, publicPEM, ttl)
			if err != nil {
				return err
			}
			token, err := svc.IssueAccessToken(id)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&privateKeyPath, "private-key", "", "私钥 PEM 路径（默认读 JWT_PRIVATE_KEY_PATH）")
	cmd.Flags().StringVar(&publicKeyPath, "public-key", "", "公钥 PEM 路径（默认读 JWT_PUBLIC_KEY_PATH）")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "令牌有效期")
	return cmd
}
