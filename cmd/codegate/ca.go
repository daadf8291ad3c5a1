package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/stacklok/codegate/internal/config"
	"github.com/stacklok/codegate/internal/tlscert"
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the local TLS interception CA",
}

var caInstallHintCmd = &cobra.Command{
	Use:   "install-hint",
	Short: "Print the OS-specific command to trust codegate's root CA",
	RunE:  runCAInstallHint,
}

func init() {
	caCmd.AddCommand(caInstallHintCmd)
	rootCmd.AddCommand(caCmd)
}

func runCAInstallHint(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	certPath := filepath.Join(cfg.CertsDir, cfg.CACert)
	keyPath := filepath.Join(cfg.CertsDir, cfg.CAKey)

	// Generates the CA on first run so the hint always names a real
	// file, matching what "codegate serve" would do.
	if _, err := tlscert.LoadOrGenerate(certPath, keyPath); err != nil {
		return fmt.Errorf("load or generate CA: %w", err)
	}

	fmt.Printf("codegate's root CA certificate is at:\n\n  %s\n\n", certPath)
	switch runtime.GOOS {
	case "darwin":
		fmt.Printf("Trust it system-wide with:\n\n  sudo security add-trusted-cert -d -r trustRoot -k /Library/Keychains/System.keychain %s\n\n", certPath)
	case "linux":
		fmt.Printf("Trust it system-wide with (Debian/Ubuntu):\n\n  sudo cp %s /usr/local/share/ca-certificates/codegate.crt\n  sudo update-ca-certificates\n\n", certPath)
	case "windows":
		fmt.Printf("Trust it system-wide with:\n\n  certutil -addstore -f \"ROOT\" %s\n\n", certPath)
	default:
		fmt.Println("Import this certificate into your OS or client's trust store.")
	}
	fmt.Println("You can also fetch it at runtime from a running gateway via GET /ca.crt on the management API port.")
	return nil
}
