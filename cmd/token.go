package cmd

import (
	"fmt"
	"time"

	"familypoints/api"
	"familypoints/models"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token for local use",
	Long: `Issue an HS256 token signed with JWT_SECRET. Production deployments get
tokens from their own identity provider; this is for development and scripts.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("role", "parent", "Actor role (parent or child)")
	tokenCmd.Flags().Int64("family", 0, "Family ID")
	tokenCmd.Flags().Int64("user", 0, "Parent user ID")
	tokenCmd.Flags().Int64("child", 0, "Child ID")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	role, _ := cmd.Flags().GetString("role")
	familyID, _ := cmd.Flags().GetInt64("family")
	userID, _ := cmd.Flags().GetInt64("user")
	childID, _ := cmd.Flags().GetInt64("child")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	claims := api.Claims{
		Role:     models.ActorRole(role),
		UserID:   userID,
		FamilyID: familyID,
		ChildID:  childID,
	}
	actor, err := claims.Actor()
	if err != nil {
		return err
	}

	token, err := api.IssueToken([]byte(cfg.JWTSecret), actor, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
