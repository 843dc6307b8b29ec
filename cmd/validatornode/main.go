// Copyright 2025 Certen Protocol
//
// validatornode is the process entrypoint for a single Validator Node:
// transaction admission, docket assembly, threshold-signature consensus,
// leader election, and committed-docket application for every register
// this node participates in.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "validatornode"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "Certen Validator Node - consensus and docket-lifecycle service",
	}

	root.AddCommand(runCmd(), genesisCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the validator node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}
}
