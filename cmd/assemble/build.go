package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/turbokube/assemble/pkg/contain"
	"go.uber.org/zap"
)

var fileOutput string

// newBuildCmd defines the build subcommand and its flags
func newBuildCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "build [context path]",
		Short: "Assemble files and write a build archive per image",
		Args:  contextArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runBuild(cmd.Context(), args) },
	}
	addConfigFlags(c)
	c.Flags().StringVar(&fileOutput, "file-output", "", "write a builds JSON with archive paths and digests")
	return c
}

func runBuild(ctx context.Context, args []string) error {
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
	if output != nil {
		output.Print(os.Stdout)
		if writeErr := writeBuildOutput(output); writeErr != nil {
			return writeErr
		}
	}
	return err
}

func writeBuildOutput(output *contain.BuildOutput) error {
	if fileOutput == "" {
		return nil
	}
	f, err := os.OpenFile(fileOutput, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		wd, _ := os.Getwd()
		zap.L().Error("file-output open", zap.String("cwd", wd), zap.String("path", fileOutput), zap.Error(err))
		return err
	}
	defer f.Close()
	if err := output.WriteJSON(f); err != nil {
		return fmt.Errorf("file-output write %s: %w", fileOutput, err)
	}
	return nil
}
