package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vorpalengineering/paylink-go/types"
)

var (
	createMerchant    string
	createRecipient   string
	createAmountUSD   string
	createOrderID     string
	createDescription string
	createWindow      int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new payment request",
	Long: `Create a new payment request priced at the current conversion rate.

Example:
  payctl create --merchant m-1 --recipient 0xabc... --amount 25.00`,
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := decimal.NewFromString(createAmountUSD)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --amount %q: %v\n", createAmountUSD, err)
			os.Exit(1)
		}

		created, err := api.Create(&types.CreateRequest{
			MerchantID:            createMerchant,
			RecipientAddress:      createRecipient,
			AmountUSD:             amount,
			OrderID:               createOrderID,
			Description:           createDescription,
			ValidityWindowSeconds: createWindow,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(created)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <reference>",
	Short: "Fetch a payment request by reference",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, err := api.Get(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(req)
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <reference>",
	Short: "Regenerate an expired payment request",
	Long: `Derive a fresh payment request from an expired one. The successor is
repriced at the current conversion rate and the old reference records which
request superseded it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		successor, err := api.Regenerate(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(successor)
	},
}

var verifyTxID string

var verifyCmd = &cobra.Command{
	Use:   "verify <reference>",
	Short: "Verify a settlement transaction against a payment request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if verifyTxID == "" {
			fmt.Fprintln(os.Stderr, "Error: --tx flag is required")
			os.Exit(1)
		}
		result, err := api.Verify(args[0], verifyTxID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(result)
		if !result.Settled {
			os.Exit(1)
		}
	},
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func init() {
	createCmd.Flags().StringVar(&createMerchant, "merchant", "", "Merchant identifier (required)")
	createCmd.Flags().StringVar(&createRecipient, "recipient", "", "Recipient token account address (required)")
	createCmd.Flags().StringVar(&createAmountUSD, "amount", "", "Amount in USD (required)")
	createCmd.Flags().StringVar(&createOrderID, "order", "", "Merchant order identifier")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Human-readable description")
	createCmd.Flags().IntVar(&createWindow, "window", 0, "Validity window in seconds (0 uses the engine default)")
	createCmd.MarkFlagRequired("merchant")
	createCmd.MarkFlagRequired("recipient")
	createCmd.MarkFlagRequired("amount")

	verifyCmd.Flags().StringVar(&verifyTxID, "tx", "", "Ledger transaction id (required)")
	verifyCmd.MarkFlagRequired("tx")
}
