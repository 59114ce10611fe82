package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildledger/backend/internal/middleware"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Duration("expiry", 0, "Token lifetime (defaults to jwt.expiry)")
}

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Mint a gateway token acting for USER_ID",
	Long: `Mint an HS256 token signed with jwt.secret_key. The bot gateway sends it as
"Authorization: Bearer <token>" on behalf of the chat user.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.JWT.SecretKey == "" {
		return errors.New("jwt.secret_key (JWT_SECRET_KEY) must be set")
	}
	expiry, _ := cmd.Flags().GetDuration("expiry")
	if expiry <= 0 {
		expiry = cfg.JWT.Expiry
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	token, err := middleware.GenerateToken(cfg.JWT.SecretKey, args[0], expiry)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
