// Command ternbase-transform creates the initial database: the complete
// transform tables and nothing else. Every later build step inherits
// them.
//
// Usage: ternbase-transform [flags] <output.db>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/store"
)

func main() {
	var force bool

	cmd := &cobra.Command{
		Use:           "ternbase-transform <output.db>",
		Short:         "create the initial transform database",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite output database if it exists")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGHUP)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, output string, force bool) error {
	log := ternbase.NewTextLogger(slog.LevelInfo)

	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s: %w (use --force to overwrite)", output, ternbase.ErrExists)
		}
	}

	db := store.New(0)
	db.CreateTransforms()

	n, err := db.Save(output)
	log.LogSave(ctx, output, n, err)
	if err != nil {
		_ = os.Remove(output)
		return err
	}

	fmt.Fprintf(os.Stderr, "%s\n", db.InfoJSON())
	return nil
}
