// Command sheetctl runs maintenance tasks against the workbook folder and
// the cache database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetvault/internal/admin"
	"github.com/JonMunkholm/sheetvault/internal/app"
	"github.com/JonMunkholm/sheetvault/internal/config"
	"github.com/JonMunkholm/sheetvault/internal/core"
	"github.com/JonMunkholm/sheetvault/internal/logging"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints the coded message for errors core knows about and the
// raw error otherwise.
func reportError(w io.Writer, err error) {
	if core.IsUserFacing(err) {
		slog.Debug("command failed", "error", err)
		fmt.Fprintln(w, "Error:", core.FormatUserError(err))
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "sheetctl",
		Short:         "Maintain the workbook folder and its cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newMigrateCmd(),
		newSyncCmd(),
		newRefreshTypesCmd(),
		newCheckFilesCmd(),
		newLoadDataCmd(),
		newCreateUserCmd(),
		newResetCacheCmd(),
		newPruneAuditCmd(),
	)
	return root
}

// withApp loads the configuration, opens the services and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.DB.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", n)
				return nil
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the cache with the workbook folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Files.Synchronizer().Sync(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newRefreshTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-types",
		Short: "Rebuild every sheet cache to re-run column classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Files.RefreshTypes(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d sheet(s) rebuilt\n", n)
				return nil
			})
		},
	}
}

func newCheckFilesCmd() *cobra.Command {
	var (
		folder string
		maxRow int
	)
	cmd := &cobra.Command{
		Use:   "check-files",
		Short: "Print the headers and row counts of each workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks, err := core.CheckFiles(folder, maxRow)
			if err != nil {
				return err
			}
			return writeChecks(cmd.OutOrStdout(), folder, checks)
		},
	}
	cmd.Flags().StringVar(&folder, "folder", envOr("EXCEL_FOLDER", "./excel_files"), "Workbook folder")
	cmd.Flags().IntVar(&maxRow, "max-row", 5000, "Last row read per sheet")
	return cmd
}

func writeChecks(w io.Writer, folder string, checks []core.FileCheck) error {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "Folder: %s\nWorkbooks: %d\n", folder, len(checks))
	for _, c := range checks {
		fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, c.Filename, rule)
		if c.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", c.Err)
			continue
		}
		for _, s := range c.Sheets {
			fmt.Fprintf(w, "\n  sheet: %s\n  columns: %d | rows: %d\n", s.Name, len(s.Headers), s.Rows)
			for i, h := range s.Headers {
				fmt.Fprintf(w, "    %d. %s\n", i+1, h)
			}
		}
	}
	return nil
}

func newLoadDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-data <dump.json>",
		Short: "Load users, file and sheet caches from a JSON dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			dump, err := core.ReadDump(f)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := core.LoadDump(ctx, a.DB, dump, a.Config.Storage.ExcelFolder)
				if err != nil {
					return err
				}
				slog.Info("dump loaded", "file", args[0])
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newCreateUserCmd() *cobra.Command {
	var in core.NewUser
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Users.CreateAccount(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), core.Profile(u))
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	cmd.Flags().BoolVar(&in.IsStaff, "admin", false, "Grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newResetCacheCmd() *cobra.Command {
	var resync bool
	cmd := &cobra.Command{
		Use:   "reset-cache",
		Short: "Drop the cache of every active workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := (&admin.Resetter{DB: a.DB}).ResetCache(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !resync {
					return nil
				}
				sync, err := a.Files.Synchronizer().Sync(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sync)
			})
		},
	}
	cmd.Flags().BoolVar(&resync, "sync", true, "Rebuild the cache from the workbook folder afterwards")
	return cmd
}

func newPruneAuditCmd() *cobra.Command {
	var keep time.Duration
	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Remove audit entries older than --keep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := (&admin.Resetter{DB: a.DB}).PruneAudit(ctx, keep)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().DurationVar(&keep, "keep", 90*24*time.Hour, "Retention period")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
