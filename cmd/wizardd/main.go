package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/softrobotics/wizard/internal/config"
	"github.com/softrobotics/wizard/internal/daemon"
	wizardversion "github.com/softrobotics/wizard/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "wizardd",
		Short:         "Wizard console core - bridges the operator to the robot broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = wizardversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.Flags().String("pid-file", "", "write the process id to this file while running")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	pidFile, _ := cmd.Flags().GetString("pid-file")

	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logger,
		PIDFile: pidFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("[wizardd] starting %s (PID: %d)", wizardversion.FormatVersion(wizardversion.String()), os.Getpid())
	logger.Printf("[wizardd] broker: %s", cfg.ServerURL)

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Printf("[wizardd] stopped")
	return nil
}
