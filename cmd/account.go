package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotwatch/internal/config"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage linked Spotify accounts",
	Long: `Manage the Spotify accounts spotwatch connects to.

Each account needs an access token that the Spotify dealer accepts. Tokens
expire; run 'spotwatch account add' again with the same id to replace one.
Accounts are saved to ~/.config/spotwatch/config.yaml.`,
}

var accountAddCmd = &cobra.Command{
	Use:   "add ID [TOKEN]",
	Short: "Link an account or replace its token",
	Long: `Link a Spotify account, or replace the access token of a linked one.

When TOKEN is omitted you are prompted for it, which keeps it out of your
shell history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAccountAdd,
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Unlink an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountRemove,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

func init() {
	accountCmd.AddCommand(accountAddCmd, accountRemoveCmd, accountListCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	// Load existing config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	id := strings.TrimSpace(args[0])
	var token string
	if len(args) == 2 {
		token = args[1]
	} else {
		fmt.Printf("Enter the access token for %s: ", id)
		reader := bufio.NewReader(os.Stdin)
		token, err = reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read access token: %w", err)
		}
	}
	token = strings.TrimSpace(token)

	// Validate inputs
	if id == "" || token == "" {
		return fmt.Errorf("account id and access token are required")
	}

	added := cfg.SetAccount(id, token)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	configPath := filepath.Join(config.GetConfigDir(), "config.yaml")
	if added {
		fmt.Printf("✓ Linked account %s\n", id)
	} else {
		fmt.Printf("✓ Replaced the token of %s\n", id)
	}
	fmt.Printf("✓ Saved to %s\n", configPath)
	if added {
		fmt.Println("\nRestart 'spotwatch watch' to connect the new account.")
	}

	return nil
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.RemoveAccount(args[0]) {
		return fmt.Errorf("account %s is not linked", args[0])
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Unlinked account %s\n", args[0])
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(cfg.Accounts) == 0 {
		fmt.Fprintln(out, "No accounts linked. Run 'spotwatch account add ID' to link one.")
		return nil
	}
	for _, a := range cfg.Accounts {
		fmt.Fprintf(out, "%s  %s\n", a.ID, maskToken(a.AccessToken))
	}
	return nil
}

// maskToken keeps the last four characters of token.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
