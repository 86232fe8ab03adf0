package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vorpalengineering/paylink-go/client"
)

var (
	engineURL string
	api       *client.EngineClient
)

var rootCmd = &cobra.Command{
	Use:   "payctl",
	Short: "Payment request lifecycle CLI",
	Long: `payctl drives a payment request engine over its HTTP API.

Create payment requests, inspect their lifecycle state, regenerate expired
ones, and submit settlement transactions for verification.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.NewEngineClient(engineURL)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engineURL, "engine", "http://localhost:8080", "Base URL of the payment engine")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(topupCmd)
	rootCmd.AddCommand(watchCmd)
}
