package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facetapp/facet/internal/entitle"
)

var premiumCmd = &cobra.Command{
	Use:   "premium",
	Short: "Full-version status and purchase",
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := openManager()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if product, err := mgr.Product(context.Background()); err == nil {
			fmt.Printf("Product: %s (%s)\n", product.DisplayName, product.Price)
		}

		// Replay receipts so purchases and revocations made since the
		// last run are reflected before we report status.
		if err := mgr.Replay(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		if mgr.Unlocked() {
			fmt.Println("Status:  unlocked")
		} else {
			fmt.Println("Status:  free tier")
		}
	},
}

var premiumUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Purchase the full version",
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := openManager()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if mgr.Unlocked() {
			fmt.Println("Already unlocked")
			return
		}

		err = mgr.Purchase(context.Background())
		if errors.Is(err, entitle.ErrVerificationFailed) {
			fmt.Fprintln(os.Stderr, "Purchase could not be verified yet; it will apply once the receipt arrives")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Full version unlocked")
	},
}

func init() {
	premiumCmd.AddCommand(premiumUnlockCmd)
	rootCmd.AddCommand(premiumCmd)
}
