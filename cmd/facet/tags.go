package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facetapp/facet/internal/store"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List and manage tags",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		tags := s.Tags()
		if len(tags) == 0 {
			fmt.Println("No tags")
			return
		}
		for _, tag := range tags {
			fmt.Printf("#%-20s %d active\n", tag.Name, len(s.ActiveIssues(tag.ID)))
		}
	},
}

var tagsNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a tag",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		tag, err := s.NewTag()
		if errors.Is(err, store.ErrTagQuotaExceeded) {
			fmt.Fprintf(os.Stderr, "Error: the free tier allows %d tags; unlock the full version with 'facet premium unlock'\n", store.TagQuota)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(args) > 0 {
			if err := s.RenameTag(tag.ID, args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		s.Save()

		if tag, ok := s.Tag(tag.ID); ok {
			fmt.Printf("Created tag #%s\n", tag.Name)
		}
	},
}

var tagsRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a tag",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		tag, ok := tagByName(s, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no tag named %q\n", args[0])
			os.Exit(1)
		}
		if err := s.RenameTag(tag.ID, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Save()

		fmt.Printf("Renamed #%s to #%s\n", args[0], args[1])
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag (issues keep existing without it)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		tag, ok := tagByName(s, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no tag named %q\n", args[0])
			os.Exit(1)
		}
		if err := s.DeleteTag(tag.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Save()

		fmt.Printf("Deleted #%s\n", args[0])
	},
}

func init() {
	tagsCmd.AddCommand(tagsNewCmd)
	tagsCmd.AddCommand(tagsRenameCmd)
	tagsCmd.AddCommand(tagsDeleteCmd)
	rootCmd.AddCommand(tagsCmd)
}
