package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/facetapp/facet/internal/config"
	"github.com/facetapp/facet/internal/syncd"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync reconciler in the foreground.

The daemon watches the database's change marker for writes made by other
devices sharing the store and merges their batches in, keeping local
unsaved edits intact. It also follows the receipt feed so purchases made
elsewhere unlock this device.

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := openStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()

		var out io.Writer = os.Stderr
		if logFile := config.LogFile(); logFile != "" {
			out = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
		}
		logger := log.New(out, "[sync] ", log.LstdFlags)

		reconciler, err := syncd.New(s, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			mgr, err := openManager()
			if err != nil {
				logger.Printf("entitlements unavailable: %v", err)
				return
			}
			if err := mgr.Monitor(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("entitlement monitor stopped: %v", err)
			}
		}()

		logger.Printf("watching %s", s.DB().MarkerPath())
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
