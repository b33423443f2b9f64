package seedling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/config"
	"github.com/pipelined/seedling/pool"
)

// Option provides a way to set functional parameters to Context.
type Option func(*Context)

// WithLogger sets logger to Context. If this option is not provided,
// silent logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Context) {
		c.log = l
	}
}

// WithRegisterer registers Context metrics with r. If this option is not
// provided, metrics are collected but not registered.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *Context) {
		c.registerer = r
	}
}

// WithDefaultPool sets size of the default pool. Nil range disables the
// default pool.
func WithDefaultPool(r *pool.Range) Option {
	return func(c *Context) {
		c.defaultPool = r
	}
}

// WithDynamicRange sets size of dynamic pools. Nil range disables dynamic
// pools.
func WithDynamicRange(r *pool.Range) Option {
	return func(c *Context) {
		c.dynamic = r
	}
}

// WithPools adds pools spawned on start.
func WithPools(pools ...*pool.Builder) Option {
	return func(c *Context) {
		c.pools = append(c.pools, pools...)
	}
}

// WithConfig applies configuration. Pools declared by configuration are
// spawned on start.
func WithConfig(cfg config.Config) Option {
	return func(c *Context) {
		c.defaultPool = rangeOf(cfg.DefaultPool)
		c.dynamic = rangeOf(cfg.Dynamic)
		c.config = append(c.config, cfg.Pools...)
	}
}

func rangeOf(r *config.Range) *pool.Range {
	if r == nil {
		return nil
	}
	return &pool.Range{Min: r.Min, Max: r.Max}
}
