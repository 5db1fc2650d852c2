package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Offline tools for inspection report documents",
		Long: `reportctl works on report trees and flat report text without a server.

It can:
  - encode a tree as flat text and decode text back into a tree
  - import txt, md, html, docx and pdf files as trees
  - apply a batch of edit operations to a tree
  - resolve inline image anchors against an asset manifest`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("templates", "", "YAML templates file (default: built-in templates)")

	root.AddCommand(encodeCmd())
	root.AddCommand(decodeCmd())
	root.AddCommand(importCmd())
	root.AddCommand(applyCmd())
	root.AddCommand(resolveCmd())
	return root
}
