package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/turbokube/assemble/pkg/assembly"
	"github.com/turbokube/assemble/pkg/contain"
	"github.com/turbokube/assemble/pkg/watch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var watchInterval time.Duration

func newWatchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch [context path]",
		Short: "Build, then archive changed assembly sources until interrupted",
		Args:  contextArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runWatch(cmd.Context(), args) },
	}
	addConfigFlags(c)
	c.Flags().DurationVar(&watchInterval, "interval", watch.DefaultInterval, "poll interval")
	return c
}

func runWatch(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	defer zap.L().Sync() //nolint:errcheck

	config, project, opts, err := setup(args)
	if err != nil {
		return err
	}
	output, err := contain.RunAll(ctx, config.Images, project, opts)
	if err != nil {
		return err
	}
	output.Print(os.Stdout)

	manager := assembly.Manager{Workers: opts.Workers}
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range output.Builds {
		if len(a.Layers) == 0 {
			zap.L().Info("nothing to watch", zap.String("image", a.Tag), zap.String("mode", a.Mode))
			continue
		}
		w := &watch.Watcher{
			Manager:  manager,
			Image:    a.Tag,
			Dirs:     a.Dirs,
			Files:    a.Files(),
			Interval: watchInterval,
			OnChange: func(ctx context.Context, c watch.Change) error {
				fmt.Fprintf(os.Stdout, "%s %s\n", c.Image, c.Archive.Path)
				return nil
			},
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
