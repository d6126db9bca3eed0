package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"igparser/pkg/auth"
	"igparser/pkg/config"
	"igparser/pkg/ui"
)

var authSource string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Instagram login",
	Long: `Manage the Instagram login the parser signs in with.

Logins are read from:
  - Environment variables INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD (default)
  - System keychain
  - Encrypted file with PBKDF2 key derivation

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store an Instagram login",
	Long: `Store an Instagram username and password in the system keychain or the
encrypted file. The password is read without echo.`,
	Example: `  # Interactive login into the keychain
  igparser auth login

  # Store a login in the encrypted file
  igparser auth login myaccount --source file`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout <username>",
	Short:   "Remove a stored login",
	Example: `  igparser auth logout myaccount --source keyring`,
	Args:    cobra.ExactArgs(1),
	Run:     runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored logins",
	Long:  `List the logins of every available source with masked passwords.`,
	Run:   runList,
}

// guideCmd represents the auth guide command
var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to provide the Instagram login",
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCredentialSetupGuide()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	loginCmd.Flags().StringVar(&authSource, "source", "", "store to write to (keyring, file; default keyring when available)")
	logoutCmd.Flags().StringVar(&authSource, "source", "", "store to remove from (keyring, file; default keyring when available)")
}

// credentialManager loads the configuration and builds the credential stores
func credentialManager(cmd *cobra.Command) (*config.Config, *auth.Manager) {
	cfg := loadConfig(commandFlags(cmd))

	manager, err := auth.NewManager(cfg.Instagram)
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return cfg, manager
}

// writableSource picks the store login and logout work on
func writableSource(manager *auth.Manager) string {
	if authSource != "" {
		return strings.ToLower(authSource)
	}
	for _, source := range manager.Sources() {
		if source == config.CredentialSourceKeyring {
			return source
		}
	}
	return config.CredentialSourceFile
}

func runLogin(cmd *cobra.Command, args []string) {
	_, manager := credentialManager(cmd)
	source := writableSource(manager)
	if source == config.CredentialSourceEnv {
		ui.PrintError("The env source is read-only", "export INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD instead")
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)

	var username string
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		fmt.Print("Instagram username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			os.Exit(1)
		}
		username = strings.TrimSpace(input)
	}
	if username == "" {
		ui.PrintError("Username is required")
		os.Exit(1)
	}

	if existing, _ := manager.Resolve(source, username); existing != nil {
		fmt.Printf("Login '%s' already exists in %s. Replace it? (y/N): ", username, source)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Print("Instagram password: ")
	password, err := readPassword(reader)
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		os.Exit(1)
	}

	creds := &auth.Credentials{
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}
	if err := manager.Store(source, creds); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Login saved to %s: %s", source, username))
	fmt.Println("\nUse it with:")
	fmt.Printf("  igparser run --credential-source %s\n", source)
	fmt.Println("\nSet INSTAGRAM_USERNAME to pick between several stored logins.")
}

func runLogout(cmd *cobra.Command, args []string) {
	_, manager := credentialManager(cmd)
	source := writableSource(manager)

	username := strings.TrimSpace(args[0])
	if err := manager.Delete(source, username); err != nil {
		ui.PrintError("Failed to remove login", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Login removed from %s: %s", source, username))
}

func runList(cmd *cobra.Command, args []string) {
	_, manager := credentialManager(cmd)

	t := ui.NewTable()
	t.SetTitle("Stored logins")
	t.AppendHeader(table.Row{"Source", "Username", "Password", "Last Modified"})

	found := 0
	for _, source := range manager.Sources() {
		logins, err := manager.List(source)
		if err != nil {
			ui.PrintWarning("Failed to list "+source, err.Error())
			continue
		}
		for _, creds := range logins {
			masked := auth.SanitizeCredentials(creds)
			modified := "-"
			if !masked.LastModified.IsZero() {
				modified = masked.LastModified.Format("2006-01-02 15:04:05")
			}
			t.AppendRow(table.Row{source, masked.Username, masked.Password, modified})
			found++
		}
	}

	if found == 0 {
		ui.PrintInfo("No stored logins", "Use 'igparser auth login' or set INSTAGRAM_USERNAME/INSTAGRAM_PASSWORD")
		return
	}
	t.Render()
}

// readPassword reads a password from stdin without echoing
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
