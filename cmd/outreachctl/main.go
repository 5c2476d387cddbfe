package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/vendor-outreach/internal/app"
	"github.com/unclebandit/vendor-outreach/internal/config"
	"github.com/unclebandit/vendor-outreach/internal/db"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/queue"
)

var (
	envFile string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "outreachctl",
	Short: "Operate the vendor outreach scheduler",
	Long: `outreachctl runs one-off maintenance against the outreach store.

It reads the same environment as the server and worker.`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		if a.DB == nil {
			return fmt.Errorf("migrate needs STORE_DRIVER=postgres")
		}
		if err := db.Migrate(ctx, a.DB); err != nil {
			return err
		}
		fmt.Println("Schema applied")
		return nil
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Insert vendors from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		vendors, err := loadSeed(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		for i := range vendors {
			if err := a.Vendors.Create(ctx, &vendors[i]); err != nil {
				return err
			}
			fmt.Printf("Seeded: %s\n", vendors[i].ID)
		}
		fmt.Println("Vendor seeding completed")
		return nil
	}),
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single dispatcher tick",
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		d, err := a.Dispatcher(ctx)
		if err != nil {
			return err
		}
		report, err := d.Tick(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	}),
}

var transitionCmd = &cobra.Command{
	Use:   "transition <vendor-id> <status>",
	Short: "Move a vendor to a new lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		if a.InProcessFeed() {
			if err := a.Orchestrator.Subscribe(a.Feed); err != nil {
				return err
			}
		}
		ev, err := a.Lifecycle.TransitionStatus(ctx, args[0], model.VendorStatus(args[1]))
		if err != nil {
			return err
		}
		if q, ok := a.Feed.(*queue.InMemoryQueue); ok {
			q.Wait()
		}
		return printJSON(ev)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <vendor-id>",
	Short: "Cancel every queued task of a vendor",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		n, err := a.Orchestrator.CancelCampaign(ctx, args[0], "cancelled from outreachctl")
		if err != nil {
			return err
		}
		fmt.Printf("Cancelled %d task(s)\n", n)
		return nil
	}),
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <vendor-id>",
	Short: "List a vendor's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		tasks, err := a.Tasks.ListBySubject(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(tasks)
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file before reading config")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(migrateCmd, seedCmd, tickCmd, transitionCmd, cancelCmd, tasksCmd)
}

// withApp loads config, builds the app and closes it after fn returns.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := config.Load(files...)
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Log); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
