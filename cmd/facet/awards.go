package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facetapp/facet/internal/awards"
	"github.com/facetapp/facet/internal/types"
)

var awardsCmd = &cobra.Command{
	Use:   "awards",
	Short: "Show awards and which ones you have earned",
	Run: func(cmd *cobra.Command, args []string) {
		all, err := awards.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		mgr, err := openManager()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		eval := awards.Evaluator{
			Issues:       func() int { return s.CountIssues(nil) },
			ClosedIssues: func() int { return s.CountIssues(func(i *types.Issue) bool { return i.Completed }) },
			Tags:         s.CountTags,
			Entitlements: mgr,
		}

		for _, award := range all {
			mark := " "
			if eval.HasEarned(award) {
				mark = "x"
			}
			fmt.Printf("[%s] %-20s %s\n", mark, award.Name, award.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(awardsCmd)
}
