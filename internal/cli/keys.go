package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keychainpgp/core/internal/cryptoengine"
	"github.com/keychainpgp/core/internal/metadatastore"
)

var generateCmd = &cobra.Command{
	Use:   "generate [name] [email]",
	Short: "Generate a new OpenPGP key pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := maybeReadPassphrase(cmd)
		if err != nil {
			return err
		}

		record, err := appInstance.Keyring.Generate(cryptoengine.UserId{Name: args[0], Email: args[1]}, passphrase)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		fmt.Println(successStyle.Render("✓ Key generated"))
		fmt.Printf("  Fingerprint: %s\n", record.Fingerprint)
		fmt.Printf("  User ID:     %s <%s>\n", record.PrimaryUserID.Name, record.PrimaryUserID.Email)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key in the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := appInstance.Keyring.List()
		if err != nil {
			return fmt.Errorf("failed to list keys: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No keys found")
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%-42s %-28s %-8s %-9s", "Fingerprint", "User ID", "Own", "Trust")))
		for _, r := range records {
			own := "no"
			if r.IsOwnKey {
				own = "yes"
			}
			userID := fmt.Sprintf("%s <%s>", r.PrimaryUserID.Name, r.PrimaryUserID.Email)
			fmt.Printf("%-42s %-28s %-8s %-9s\n", r.Fingerprint, truncate(userID, 28), own, r.TrustLevel)
		}
		fmt.Printf("\nTotal: %d key(s)\n", len(records))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [fingerprint]",
	Short: "Show full metadata for one key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, found, err := appInstance.Keyring.Get(args[0])
		if err != nil {
			return fmt.Errorf("failed to inspect key: %w", err)
		}
		if !found {
			return fmt.Errorf("no key with fingerprint %q", args[0])
		}

		fmt.Printf("Fingerprint:  %s\n", record.Fingerprint)
		fmt.Printf("Algorithm:    %s\n", record.AlgorithmLabel)
		fmt.Printf("Own key:      %v\n", record.IsOwnKey)
		fmt.Printf("Trust:        %s\n", record.TrustLevel)
		fmt.Printf("Created:      %s\n", record.CreatedAt.Format("2006-01-02"))
		if record.ExpiresAt != nil {
			fmt.Printf("Expires:      %s\n", record.ExpiresAt.Format("2006-01-02"))
		}
		fmt.Println("User IDs:")
		for _, uid := range record.AllUserIDs {
			fmt.Printf("  - %s <%s>\n", uid.Name, uid.Email)
		}
		if len(record.RevocationBytes) > 0 {
			fmt.Println(mutedStyle.Render("A revocation certificate is on file for this key."))
		}

		detailed, _ := cmd.Flags().GetBool("detailed")
		if !detailed {
			return nil
		}
		info, found, err := appInstance.Keyring.GetDetailed(args[0])
		if err != nil {
			return fmt.Errorf("failed to inspect key subkeys: %w", err)
		}
		if !found {
			return nil
		}
		fmt.Println("Subkeys:")
		for _, sk := range info.Subkeys {
			fmt.Printf("  - %s  capabilities=%v created=%s", sk.Fingerprint, sk.Capabilities, sk.CreatedAt.Format("2006-01-02"))
			if sk.ExpiresAt != nil {
				fmt.Printf(" expires=%s", sk.ExpiresAt.Format("2006-01-02"))
			}
			if sk.Revoked {
				fmt.Print(" revoked")
			}
			fmt.Println()
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a certificate or secret key from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		record, err := appInstance.Keyring.Import(blob)
		if err != nil {
			return fmt.Errorf("failed to import key: %w", err)
		}
		fmt.Println(successStyle.Render("✓ Key imported"))
		fmt.Printf("  Fingerprint: %s\n", record.Fingerprint)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [fingerprint] [file]",
	Short: "Export a certificate, optionally including secret material",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		includeSecret, _ := cmd.Flags().GetBool("secret")
		blob, err := appInstance.Keyring.Export(args[0], includeSecret)
		if err != nil {
			return fmt.Errorf("failed to export key: %w", err)
		}
		if err := os.WriteFile(args[1], blob, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[1], err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Exported to %s", args[1])))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [fingerprint]",
	Short: "Remove a key and any secret material for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.Keyring.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		fmt.Println(successStyle.Render("✓ Key deleted"))
		return nil
	},
}

var trustCmd = &cobra.Command{
	Use:   "trust [fingerprint] [unknown|imported|verified]",
	Short: "Set the trust level attested for a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseTrustLevel(args[1])
		if err != nil {
			return err
		}
		if err := appInstance.Keyring.SetTrust(args[0], level); err != nil {
			return fmt.Errorf("failed to set trust: %w", err)
		}
		fmt.Println(successStyle.Render("✓ Trust updated"))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search keys by name, email, or fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := appInstance.Keyring.Search(args[0])
		if err != nil {
			return fmt.Errorf("failed to search keys: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No matching keys")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s <%s>\n", r.Fingerprint, r.PrimaryUserID.Name, r.PrimaryUserID.Email)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("passphrase", false, "Prompt for a passphrase to protect the new secret key")
	exportCmd.Flags().Bool("secret", false, "Include secret key material in the export")
	inspectCmd.Flags().Bool("detailed", false, "Also show per-subkey capabilities, expiry and revocation")
}

func maybeReadPassphrase(cmd *cobra.Command) ([]byte, error) {
	wantPassphrase, _ := cmd.Flags().GetBool("passphrase")
	if !wantPassphrase {
		return nil, nil
	}
	fmt.Print("Enter passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

func parseTrustLevel(s string) (metadatastore.TrustLevel, error) {
	switch s {
	case "unknown":
		return metadatastore.TrustUnknown, nil
	case "imported":
		return metadatastore.TrustImported, nil
	case "verified":
		return metadatastore.TrustVerified, nil
	default:
		return 0, fmt.Errorf("unknown trust level %q, want unknown|imported|verified", s)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
