package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/facetapp/facet/internal/config"
	"github.com/facetapp/facet/internal/entitle"
	"github.com/facetapp/facet/internal/store"
	"github.com/facetapp/facet/internal/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "facet",
	Short: "Local-first issue tracking",
	Long: `Facet is a local-first issue tracker.

Issues, tags and filters live in a SQLite database under the .facet
directory. Edits are batched and flushed on a debounce; a sync daemon
merges changes written by other devices sharing the same store.`,
	SilenceUsage: true,
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the project store with entitlements wired in. The
// caller must Close it.
func openStore() (*store.Store, error) {
	facetDir, err := config.FindDir()
	if err != nil {
		return nil, err
	}

	deviceID, err := config.DeviceID(facetDir)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(config.Database(facetDir), deviceID)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	settings, err := entitle.OpenSettings(facetDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	s, err := store.New(db,
		store.WithEntitlements(settings),
		store.WithDebounce(config.Debounce()),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// openManager wires the receipt-file feed to the entitlement manager.
func openManager() (*entitle.Manager, error) {
	facetDir, err := config.FindDir()
	if err != nil {
		return nil, err
	}
	settings, err := entitle.OpenSettings(facetDir)
	if err != nil {
		return nil, err
	}

	product := config.PremiumProduct()
	feed := entitle.NewFileFeed(
		filepath.Join(facetDir, "receipts.json"),
		[]entitle.Product{{ID: product, DisplayName: "Facet Premium", Price: "$4.99"}},
	)
	return entitle.NewManager(feed, settings, product, nil), nil
}
