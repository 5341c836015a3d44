package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Transfer keys between devices as a passphrase-protected bundle",
}

var bundleExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every key into a transfer bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := appInstance.Bundles.Export()
		if err != nil {
			return fmt.Errorf("failed to export bundle: %w", err)
		}
		if err := os.WriteFile(args[0], result.FileBlob, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[0], err)
		}

		asQR, _ := cmd.Flags().GetBool("qr")
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Bundle written to %s", args[0])))
		fmt.Printf("Transfer passphrase (share out-of-band): %s\n", result.Passphrase)
		if asQR {
			fmt.Printf("\n%d QR part(s):\n", len(result.QRParts))
			for _, part := range result.QRParts {
				fmt.Println(part)
			}
		}
		return nil
	},
}

var bundleImportCmd = &cobra.Command{
	Use:   "import [file] [passphrase]",
	Short: "Import a transfer bundle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		result, err := appInstance.Bundles.Import(string(blob), args[1])
		if err != nil {
			return fmt.Errorf("failed to import bundle: %w", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Imported %d key(s), skipped %d already known", result.ImportedCount, result.SkippedCount)))
		return nil
	},
}

func init() {
	bundleCmd.AddCommand(bundleExportCmd)
	bundleCmd.AddCommand(bundleImportCmd)
	bundleExportCmd.Flags().Bool("qr", false, "Also print the bundle as ordered QR parts")
}
