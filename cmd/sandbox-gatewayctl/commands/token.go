package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/sandbox-gateway/internal/token"
)

var (
	tokenSandboxID string
	tokenSessionID string
	tokenExpiresIn string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint proxy tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a proxy token for a sandbox, bypassing run_task",
	Long: `Issue a proxy token outside the normal run_task flow, for example to
hand a replacement token to a sandbox whose original token expired mid-run.`,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSandboxID, "sandbox-id", "", "Sandbox the token authorizes (required)")
	tokenIssueCmd.Flags().StringVar(&tokenSessionID, "session-id", "", "Session to associate, if any")
	tokenIssueCmd.Flags().StringVar(&tokenExpiresIn, "expires-in", "2h", "Token lifetime, e.g. 30m|2h|1d")
	_ = tokenIssueCmd.MarkFlagRequired("sandbox-id")
	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tok, err := token.Create(token.CreateParams{
		Secret:    cfg.ProxyJWTSecret,
		SandboxID: tokenSandboxID,
		SessionID: tokenSessionID,
		ExpiresIn: tokenExpiresIn,
	})
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(tok)
	return nil
}
