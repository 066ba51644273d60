package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/services"
	"github.com/prudhvinik1/tenantsync/internal/utils"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a tenant",
	Long: `Sign a token with JWT_SECRET for local testing and service-to-service
calls. Production tokens are issued by the account service.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("tenant", "", "Tenant id the token is scoped to")
	tokenCmd.Flags().String("user", "cli", "User id to embed")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, _ []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	userID, _ := cmd.Flags().GetString("user")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if !utils.ValidTenantID(tenantID) {
		return errors.New("--tenant must be a valid tenant id")
	}

	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}

	token, err := services.NewAuthService(cfg.JWTSecret).IssueToken(userID, tenantID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
