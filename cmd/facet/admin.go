package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/facetapp/facet/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .facet directory here",
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		facetDir := filepath.Join(cwd, "."+config.DirName)
		if _, err := os.Stat(facetDir); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists\n", facetDir)
			os.Exit(1)
		}
		if err := os.MkdirAll(facetDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		defaults := map[string]any{
			"database":         "facet.db",
			"debounce_seconds": 3,
		}
		raw, err := yaml.Marshal(defaults)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		configPath := filepath.Join(facetDir, config.FileName)
		if err := os.WriteFile(configPath, raw, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Re-read config now that the file exists, then create the
		// database so the first command does not race the daemon.
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s.Close()

		fmt.Printf("Initialized %s\n", facetDir)
	},
}

var resetFlags struct {
	sample bool
	force  bool
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every issue and tag",
	Run: func(cmd *cobra.Command, args []string) {
		if !resetFlags.force {
			fmt.Fprintln(os.Stderr, "Error: reset deletes everything; pass --force to confirm")
			os.Exit(1)
		}

		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		s.DeleteAll()
		if resetFlags.sample {
			s.CreateSampleData()
			fmt.Println("Reset store and created sample data")
			return
		}
		fmt.Println("Reset store")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetFlags.sample, "sample", false, "repopulate with sample data")
	resetCmd.Flags().BoolVar(&resetFlags.force, "force", false, "skip the confirmation check")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(resetCmd)
}
