package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fetchkit/pkg/session"
)

var (
	// Session command flags
	sessionAccount string
	cookieNames    []string
	tokenNames     []string
	userAgent      string
)

// sessionCmd groups session management subcommands
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the persisted session",
	Long: `Inspect, set, or clear the session used to authenticate fetches.

Session values are stored per the configured backend: a plain JSON file,
an encrypted file, or the system keychain.`,
}

// sessionShowCmd prints the persisted session without secret values
var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}

		blob, ok := store.Load()
		if !ok {
			fmt.Println("No session stored.")
			return nil
		}

		fmt.Printf("Account:    %s\n", blob.Account)
		fmt.Printf("User agent: %s\n", blob.UserAgent)
		fmt.Printf("Created:    %s\n", blob.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:    %s\n", blob.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Cookies:    %s\n", strings.Join(sortedKeys(blob.Cookies), ", "))
		fmt.Printf("Tokens:     %s\n", strings.Join(sortedKeys(blob.Tokens), ", "))
		return nil
	},
}

// sessionSetCmd stores a session from prompted secret values
var sessionSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a session",
	Long: `Store session credentials for future fetches.

Each named cookie and token value is prompted for without echoing, so
secrets never end up in shell history.`,
	Example: `  # Store a cookie-based session
  fetchkit session set --account alice --cookie sessionid --cookie csrftoken

  # Store a bearer token sent as a header
  fetchkit session set --account alice --token Authorization`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cookieNames) == 0 && len(tokenNames) == 0 {
			return fmt.Errorf("at least one --cookie or --token is required")
		}

		store, err := openSessionStore()
		if err != nil {
			return err
		}

		blob := session.NewBlob(sessionAccount)
		blob.UserAgent = userAgent

		for _, name := range cookieNames {
			value, err := promptSecret(fmt.Sprintf("Value for cookie %q: ", name))
			if err != nil {
				return err
			}
			blob.Cookies[name] = value
		}
		for _, name := range tokenNames {
			value, err := promptSecret(fmt.Sprintf("Value for token %q: ", name))
			if err != nil {
				return err
			}
			blob.Tokens[name] = value
		}

		if err := store.Save(blob); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		fmt.Println("Session stored.")
		return nil
	},
}

// sessionClearCmd removes the persisted session
var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}

		if err := store.Invalidate(); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}

		fmt.Println("Session cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSetCmd)
	sessionCmd.AddCommand(sessionClearCmd)

	sessionSetCmd.Flags().StringVarP(&sessionAccount, "account", "a", "", "account the session belongs to")
	sessionSetCmd.Flags().StringArrayVar(&cookieNames, "cookie", nil, "cookie name to prompt a value for (repeatable)")
	sessionSetCmd.Flags().StringArrayVar(&tokenNames, "token", nil, "header name to prompt a value for (repeatable)")
	sessionSetCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent the session was issued under")
}

// openSessionStore opens the configured session store
func openSessionStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if sessionAccount != "" {
		cfg.Session.Account = sessionAccount
	}

	store, err := session.NewStoreFromConfig(&cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

// promptSecret reads a value from stdin without echoing
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(value)), nil
		}
	}

	// Fallback to regular input for piped stdin
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
