package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discoclaw/discoclaw/internal/infrastructure/config"
	"github.com/discoclaw/discoclaw/internal/infrastructure/logger"
	"github.com/discoclaw/discoclaw/internal/infrastructure/pidlock"
)

const (
	appVersion = "0.1.0"
	appName    = "discoclawd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Discoclaw — a persona-driven assistant bridging chat to LM agents",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "run the gateway: message pipeline, cron scheduler, and defer queue",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "check config, data root, and process lock state",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServe starts the application and blocks until an OS signal or an
// unrecoverable startup error.
//
// A concrete chatservice.ChatService is out of scope for this module
// (see internal/infrastructure/chatservice's package doc); production
// deployments link a chat-backend adapter into this binary via a build
// tag and supply it here. Without one, serve runs in degraded mode:
// every subsystem starts except the message pipeline itself.
func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.New(logger.Config{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("starting discoclawd", zap.String("version", appVersion))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	app, err := NewApp(cfg, log, nil)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}
	log.Warn("no chat backend wired; running with cron/forge/plan/defer subsystems only, no message pipeline")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped cleanly")
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("discoclawd doctor v%s\n\n", appVersion)

	cfg, cfgErr := config.Load()
	printCheck("config load", cfgErr == nil, errString(cfgErr))

	if cfgErr == nil {
		_, statErr := os.Stat(cfg.DataRoot)
		printCheck("data root "+cfg.DataRoot, statErr == nil, errString(statErr))
		stale := pidlock.IsStale(cfg.DataRoot)
		printCheck("no stale process lock", !stale, "")
	}
	return nil
}

func printCheck(name string, ok bool, detail string) {
	icon := "✓"
	if !ok {
		icon = "✗"
	}
	if detail != "" {
		fmt.Printf("  %s %s: %s\n", icon, name, detail)
		return
	}
	fmt.Printf("  %s %s\n", icon, name)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
