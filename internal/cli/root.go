// Package cli implements the cobra-based command surface over
// KeyringService and BundleCodec (spec.md §6).
package cli

import (
	"github.com/spf13/cobra"

	"github.com/keychainpgp/core/internal/app"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "keychainpgp",
	Short: "Manage OpenPGP keys, encrypt, decrypt, sign, and verify",
	Long: `keychainpgp is the command-line front end over the KeychainPGP keyring
core: key generation and import/export, encryption and signing, trust
management, transfer bundles, and OPSEC session controls.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetApp installs the App instance every subcommand reads from.
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(opsecCmd)
	rootCmd.AddCommand(panicWipeCmd)
	rootCmd.AddCommand(cacheCmd)
}
