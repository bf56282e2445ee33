package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gametimed/internal/app"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "gametimed",
	Short: "Game time daemon",
	Long:  "gametimed keeps an accelerated game clock, converts between real and game time, and fires persistent schedules at partially specified game times.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(convertCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	return a.Err()
}
