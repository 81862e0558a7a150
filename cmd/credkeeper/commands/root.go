package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/agentdeck/credkeeper/internal/app"
	"github.com/agentdeck/credkeeper/internal/credstore"
	"github.com/agentdeck/credkeeper/internal/observability"
	"github.com/agentdeck/credkeeper/internal/probe"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "credkeeper",
		Usage: "Credential lifecycle and account rotation for agent pools",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			statusCommand(),
			selectCommand(),
			refreshCommand(),
			verifyCommand(),
			setKeyCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the account monitor daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.DurationFlag{
				Name:  "monitor--interval",
				Usage: "interval between availability checks",
				Value: app.DefaultConfigMonitorInterval,
			},
			&cli.DurationFlag{
				Name:  "monitor--refresh-interval",
				Usage: "interval between proactive token refreshes",
				Value: app.DefaultConfigRefreshInterval,
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	application, err := buildApp(cmd)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the state of every configured account",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := buildApp(cmd)
			if err != nil {
				return err
			}

			for _, st := range application.Snapshot(ctx) {
				marker := " "
				if st.Active {
					marker = "*"
				}
				state := "unauthenticated"
				if st.Authenticated {
					state = "ok"
				}
				if st.Error != "" {
					state = "error: " + st.Error
				}
				fmt.Printf("%s %-20s %-6s %s", marker, st.ID, st.Type, state)
				if st.Email != "" {
					fmt.Printf("  %s", st.Email)
				}
				if !st.TokenExpiry.IsZero() {
					fmt.Printf("  expires %s", st.TokenExpiry.Format("2006-01-02 15:04"))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "make an account the active selection",
		ArgsUsage: "<account-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("account id required")
			}

			application, err := buildApp(cmd)
			if err != nil {
				return err
			}

			found := false
			for _, st := range application.Snapshot(ctx) {
				if st.ID == id {
					found = true
				}
			}
			if !found {
				return fmt.Errorf("unknown account %q", id)
			}

			application.Rotator().SetActive(id)
			fmt.Printf("active account set to %s\n", id)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "force a token refresh for an OAuth account",
		ArgsUsage: "<account-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("account id required")
			}

			cfg, application, err := buildAppWithConfig(cmd)
			if err != nil {
				return err
			}

			acc := findAccount(cfg, id)
			if acc == nil {
				return fmt.Errorf("unknown account %q", id)
			}
			if acc.Type != app.AccountTypeOAuth {
				return fmt.Errorf("account %q is not an OAuth account", id)
			}

			result := application.Refresher().ReactiveRefresh(ctx, credstore.Ref{
				ID: acc.ID, Name: acc.Name, ConfigDir: acc.ConfigDir,
			})
			if result.Err != "" {
				return fmt.Errorf("refresh failed: %s", result.Err)
			}
			if result.PersistenceFailed {
				fmt.Println("token refreshed but could not be persisted")
				return nil
			}
			fmt.Println("token refreshed")
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "probe the provider with an account's credential",
		ArgsUsage: "<account-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("account id required")
			}

			cfg, application, err := buildAppWithConfig(cmd)
			if err != nil {
				return err
			}

			acc := findAccount(cfg, id)
			if acc == nil {
				return fmt.Errorf("unknown account %q", id)
			}

			switch acc.Type {
			case app.AccountTypeAPI:
				key := os.Getenv(acc.APIKeyEnv)
				if acc.APIKeyEnv == "" {
					key, err = credstore.GetAPIKey(acc.ID)
					if err != nil {
						return fmt.Errorf("reading API key: %w", err)
					}
				}
				if err := probe.VerifyAPIKey(ctx, key, acc.BaseURL); err != nil {
					return err
				}
			case app.AccountTypeOAuth:
				creds := application.Store().GetCredentials(ctx, credstore.Ref{
					ID: acc.ID, Name: acc.Name, ConfigDir: acc.ConfigDir,
				}, true)
				if err := probe.Verify(ctx, creds.Token); err != nil {
					return err
				}
			}

			fmt.Printf("%s: credential accepted\n", id)
			return nil
		},
	}
}

func setKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-key",
		Usage:     "store an API key for an account in the OS keyring",
		ArgsUsage: "<account-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("account id required")
			}

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("no terminal available for the key prompt")
			}

			fmt.Fprint(os.Stderr, "API key: ")
			key, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}
			if len(key) == 0 {
				return fmt.Errorf("empty key")
			}

			if err := credstore.SetAPIKey(id, string(key)); err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			fmt.Printf("key stored for %s\n", id)
			return nil
		},
	}
}

func buildApp(cmd *cli.Command) (*app.App, error) {
	_, application, err := buildAppWithConfig(cmd)
	return application, err
}

func buildAppWithConfig(cmd *cli.Command) (*app.Config, *app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}
	return cfg, application, nil
}

func findAccount(cfg *app.Config, id string) *app.AccountConfig {
	for i := range cfg.Accounts {
		if cfg.Accounts[i].ID == id {
			return &cfg.Accounts[i]
		}
	}
	return nil
}
