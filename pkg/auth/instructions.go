package auth

import (
	"fmt"
	"strings"
)

// ShowCredentialSetupGuide explains the three credential sources
func ShowCredentialSetupGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INSTAGRAM LOGIN SETUP")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("The parser signs in to Instagram with a username and password.")
	fmt.Println("Pick where it reads them from with --credential-source or IGPARSER_CREDENTIAL_SOURCE:")
	fmt.Println()

	fmt.Println("  env (default)")
	fmt.Println("    export INSTAGRAM_USERNAME=...")
	fmt.Println("    export INSTAGRAM_PASSWORD=...")
	fmt.Println("    Both can also live in a .env file in the working directory.")
	fmt.Println()

	fmt.Println("  keyring")
	fmt.Println("    igparser auth login --source keyring")
	fmt.Println("    Stores the login in the system keychain (macOS Keychain, Secret Service, Windows Credential Manager).")
	fmt.Println()

	fmt.Println("  file")
	fmt.Println("    igparser auth login --source file")
	fmt.Println("    Stores the login in an encrypted file, one sealed entry per username.")
	fmt.Println("    IGPARSER_PASSPHRASE must be set whenever a login is stored or used.")
	fmt.Println()

	fmt.Println("Tips:")
	fmt.Println("  • Use a dedicated account; accounts that require verification cannot be automated")
	fmt.Println("  • Set INSTAGRAM_USERNAME to pick one of several stored logins")
	fmt.Println(strings.Repeat("=", 80))
}
