package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [file] [fingerprint...]",
	Short: "Encrypt a file for one or more recipient certificates",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		var recipients [][]byte
		for _, fp := range args[1:] {
			cert, err := appInstance.Keyring.Export(fp, false)
			if err != nil {
				return fmt.Errorf("failed to load recipient %s: %w", fp, err)
			}
			recipients = append(recipients, cert)
		}

		ciphertext, err := appInstance.Engine.Encrypt(plaintext, recipients)
		if err != nil {
			return fmt.Errorf("failed to encrypt: %w", err)
		}
		fmt.Print(string(ciphertext))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [file]",
	Short: "Decrypt a message with whichever own key can open it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		armored, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		passphrase, err := maybeReadPassphrase(cmd)
		if err != nil {
			return err
		}

		plaintext, signers, err := appInstance.Keyring.Decrypt(armored, passphrase)
		if err != nil {
			return fmt.Errorf("failed to decrypt: %w", err)
		}
		fmt.Print(string(plaintext))
		for _, s := range signers {
			status := "unverified"
			if s.Verified {
				status = "verified"
			}
			fmt.Fprintf(os.Stderr, "signed by %s (%s)\n", s.Fingerprint, status)
		}
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign a file with an own key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		fingerprint, _ := cmd.Flags().GetString("key")
		passphrase, err := maybeReadPassphrase(cmd)
		if err != nil {
			return err
		}

		signed, err := appInstance.Keyring.Sign(fingerprint, data, passphrase)
		if err != nil {
			return fmt.Errorf("failed to sign: %w", err)
		}
		fmt.Print(string(signed))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a signed message against every known certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		armored, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		result, err := appInstance.Keyring.Verify(armored)
		if err != nil {
			return fmt.Errorf("failed to verify: %w", err)
		}
		if result.Valid {
			fmt.Println(successStyle.Render(fmt.Sprintf("✓ Valid signature from %s (trust: %s)", result.SignerFingerprint, result.TrustLevel)))
		} else {
			fmt.Println(warningStyle.Render(fmt.Sprintf("⚠ Signature from %s did not verify", result.SignerFingerprint)))
		}
		return nil
	},
}

func init() {
	signCmd.Flags().String("key", "", "Fingerprint of the signing key (required if more than one own key exists)")
	signCmd.Flags().Bool("passphrase", false, "Prompt for the signing key's passphrase")
	decryptCmd.Flags().Bool("passphrase", false, "Prompt for the decrypting key's passphrase")
}
