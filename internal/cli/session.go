package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var opsecCmd = &cobra.Command{
	Use:   "opsec",
	Short: "Enable or disable OPSEC (volatile, in-memory) session mode",
}

var opsecEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Switch the session onto volatile in-memory storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.EnableOpsec(); err != nil {
			return fmt.Errorf("failed to enable OPSEC mode: %w", err)
		}
		fmt.Println(warningStyle.Render("⚠ OPSEC mode enabled: nothing new will be written to disk"))
		return nil
	},
}

var opsecDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Switch the session back onto durable storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.DisableOpsec(); err != nil {
			return fmt.Errorf("failed to disable OPSEC mode: %w", err)
		}
		fmt.Println(successStyle.Render("✓ OPSEC mode disabled: session state is durable again"))
		return nil
	},
}

var panicWipeCmd = &cobra.Command{
	Use:   "panic-wipe",
	Short: "Immediately destroy the session's wrapping key and passphrase cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance.PanicWipe()
		fmt.Println(errorStyle.Render("Session secrets wiped. Every own key now requires a fresh session to use."))
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the cached passphrases used for auto-decrypt",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance.Keyring.ClearPassphraseCache()
		fmt.Println(successStyle.Render("✓ Passphrase cache cleared"))
		return nil
	},
}

func init() {
	opsecCmd.AddCommand(opsecEnableCmd)
	opsecCmd.AddCommand(opsecDisableCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
