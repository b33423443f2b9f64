package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pipelined/seedling"
	"github.com/pipelined/seedling/config"
	"github.com/pipelined/seedling/engine"
	"github.com/pipelined/seedling/log"
	"github.com/pipelined/seedling/pool"
	"github.com/pipelined/seedling/sample"
)

type playOptions struct {
	volume      float32
	repeat      int
	pool        string
	metricsAddr string
}

func newPlayCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play <file.wav>...",
		Short: "Play wav files",
		Long: `Play wav files through sampler pools.

Every file is a separate playback request. The command returns when all
requests are done or it's interrupted.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts.config)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, opts, args)
		},
	}
	cmd.Flags().Float32Var(&opts.volume, "volume", 1, "linear gain of playback")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 0, "number of repeats, -1 repeats forever")
	cmd.Flags().StringVar(&opts.pool, "pool", "", "label of the pool to play with")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, opts *playOptions, files []string) error {
	l := log.GetLogger()
	registry := prometheus.NewRegistry()
	e := engine.New(
		engine.WithCapacity(cfg.Graph.Capacity),
		engine.WithBacklog(cfg.Graph.Backlog),
		engine.WithLogger(l),
	)
	assets := sample.NewAssets(l)
	c, err := seedling.New(e, assets,
		seedling.WithConfig(cfg),
		seedling.WithLogger(l),
		seedling.WithRegisterer(registry),
	)
	if err != nil {
		return err
	}

	handles := make([]sample.Handle, 0, len(files))
	for _, path := range files {
		handles = append(handles, assets.Load(path))
	}
	assets.Wait()
	settings := sample.Settings{
		Volume:     opts.volume,
		Repeat:     sample.RepeatMode(opts.repeat),
		OnComplete: sample.Despawn,
	}
	for i, h := range handles {
		if err := assets.Err(h); err != nil {
			return fmt.Errorf("load %s: %w", files[i], err)
		}
		components := []any{settings}
		if opts.pool != "" {
			components = append(components, pool.LabelOf(opts.pool))
		}
		c.Play(h, components...)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.Processor().Run(ctx, blockInterval(cfg.Graph), cfg.Graph.BlockFrames)
	})
	g.Go(func() error {
		defer cancel()
		return control(ctx, c, cfg.FrameRate, l)
	})
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:    opts.metricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// control runs frames until every request is done.
func control(ctx context.Context, c *seedling.Context, frameRate int, l logrus.FieldLogger) error {
	ticker := time.NewTicker(time.Second / time.Duration(frameRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Update(); err != nil {
				l.WithError(err).WithField("frame", c.Frame()).Warn("frame failed")
			}
			if c.Playing() == 0 {
				l.WithField("frame", c.Frame()).Info("playback done")
				return nil
			}
		}
	}
}

// blockInterval returns duration of a processing block.
func blockInterval(g config.Graph) time.Duration {
	return time.Duration(g.BlockFrames) * time.Second / time.Duration(g.SampleRate)
}
