// Command seedling plays wav files through sampler pools of the in-process
// graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	config string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "seedling",
		Short: "Sampler pool scheduler",
		Long:  "Schedule sample playback across pools of sampler nodes of an in-process audio graph.",
	}
	cmd.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "path to YAML config")

	cmd.AddCommand(newPlayCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
