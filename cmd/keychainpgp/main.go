package main

import (
	"fmt"
	"os"

	"github.com/keychainpgp/core/internal/app"
	"github.com/keychainpgp/core/internal/cli"
)

func main() {
	skipInit := false
	for _, a := range os.Args[1:] {
		if a == "-h" || a == "--help" || a == "help" {
			skipInit = true
			break
		}
	}

	if !skipInit {
		a, err := app.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize keychainpgp: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if _, err := a.RecoverKeyring(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to reconcile keyring state: %v\n", err)
			os.Exit(1)
		}

		cli.SetApp(a)
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
