// Package main is the entry point for the parley CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/tool"
	"github.com/parleyhq/parley/pkg/app"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "A self-hosted, multi-channel AI assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), modulesCmd())
	return root
}

func modulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules [namespace]",
		Short: "List compiled modules, optionally filtered by namespace",
		Args:  cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			mods := core.GetModules()
			if len(args) == 1 {
				mods = core.GetModulesByNamespace(args[0])
			}
			if len(mods) == 0 {
				fmt.Println("No matching modules.")
				return
			}
			for _, mod := range mods {
				fmt.Println(mod.ID)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("parley %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start parley with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			levelName, _ := cmd.Flags().GetString("log-level")
			level, err := parseLogLevel(levelName)
			if err != nil {
				return err
			}

			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				LogLevel:   level,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("log-level", "info", "Minimum log level (debug, info, warn, error)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))
			appCtx := core.NewAppContext(logger, app.DefaultDataDir(), app.DefaultWorkspace())
			appCtx = appCtx.WithModuleConfigs(cfg.Modules)

			// Tool modules resolve these at Provision; a dry run needs them
			// present just like a real start.
			appCtx.RegisterService("security.credentials", security.NewCredentialStore())
			appCtx.RegisterService("tool.registry", tool.NewRegistry())
			appCtx.RegisterService("config.path", args[0])

			application := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
