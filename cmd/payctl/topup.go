package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	gatePayer   string
	topupPayer  string
	topupAmount string
)

var gateCmd = &cobra.Command{
	Use:   "gate <reference>",
	Short: "Check whether a payer can settle a payment request",
	Run: func(cmd *cobra.Command, args []string) {
		if gatePayer == "" {
			fmt.Fprintln(os.Stderr, "Error: --payer flag is required")
			os.Exit(1)
		}
		result, err := api.Gate(args[0], gatePayer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(result)
	},
	Args: cobra.ExactArgs(1),
}

var topupCmd = &cobra.Command{
	Use:   "topup",
	Short: "Request a fiat top-up for an underfunded payer",
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := decimal.NewFromString(topupAmount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --amount %q: %v\n", topupAmount, err)
			os.Exit(1)
		}
		handle, err := api.RequestTopUp(topupPayer, amount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(handle)
	},
}

func init() {
	gateCmd.Flags().StringVar(&gatePayer, "payer", "", "Payer token account address (required)")
	gateCmd.MarkFlagRequired("payer")

	topupCmd.Flags().StringVar(&topupPayer, "payer", "", "Payer token account address (required)")
	topupCmd.Flags().StringVar(&topupAmount, "amount", "", "Minimum token amount to credit (required)")
	topupCmd.MarkFlagRequired("payer")
	topupCmd.MarkFlagRequired("amount")
}
