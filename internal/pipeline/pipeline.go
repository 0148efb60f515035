// Package pipeline runs the host loop: lines read from an ingestor are
// logged through the sink context, and the heartbeat emitter is checked on
// every line and on a fixed tick.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/heartlog/internal/config"
	"github.com/GabrielNunesIT/heartlog/internal/heartbeat"
	"github.com/GabrielNunesIT/heartlog/internal/ingestor"
	"github.com/GabrielNunesIT/heartlog/internal/sink"
)

// Runner is a background component that runs until its context ends, such
// as config.ConfigWatcher.
type Runner interface {
	Run(ctx context.Context) error
}

// ConfigSource publishes reloaded configurations.
type ConfigSource interface {
	Runner
	Changes() <-chan *config.Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfigSource makes the pipeline apply configs published by src.
func WithConfigSource(src ConfigSource) Option {
	return func(p *Pipeline) {
		p.configSource = src
	}
}

// WithOverrides sets a function applied to every config passed to
// Reconfigure before it takes effect, such as command line overrides.
func WithOverrides(fn func(*config.Config)) Option {
	return func(p *Pipeline) {
		p.overrides = fn
	}
}

// WithTicker replaces the tick channel, for tests.
func WithTicker(tick <-chan time.Time) Option {
	return func(p *Pipeline) {
		p.tick = tick
	}
}

// Pipeline wires an ingestor, the logging context and a heartbeat emitter.
type Pipeline struct {
	cfg    *config.Config
	logger logger.ILogger

	lc     *sink.Context
	source ingestor.Ingestor

	configSource ConfigSource
	overrides    func(*config.Config)
	tick         <-chan time.Time

	// mu serializes heartbeat checks with reconfiguration.
	mu      sync.Mutex
	hb      *heartbeat.Emitter
	message string
	replace bool

	lines int
}

// New creates a pipeline. The heartbeat emitter is built from cfg.
func New(cfg *config.Config, lc *sink.Context, source ingestor.Ingestor, log logger.ILogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		logger:  log.SubLogger("Pipeline"),
		lc:      lc,
		source:  source,
		hb:      NewHeartbeat(cfg.Heartbeat),
		message: cfg.Heartbeat.Message,
		replace: cfg.Heartbeat.Replace,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewHeartbeat builds an emitter from the heartbeat section of the config.
func NewHeartbeat(cfg config.HeartbeatConfig, opts ...heartbeat.Option) *heartbeat.Emitter {
	base := []heartbeat.Option{
		heartbeat.WithDefaultInterval(cfg.DefaultInterval),
		heartbeat.WithElapsedPolicy(heartbeat.ParseElapsedPolicy(cfg.Elapsed)),
	}
	return heartbeat.New(cfg.Name, cfg.Interval, append(base, opts...)...)
}

// HeartbeatInterval returns the current heartbeat interval in seconds.
func (p *Pipeline) HeartbeatInterval() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hb.Interval()
}

// SetHeartbeat replaces the emitter, e.g. to inject a clock in tests.
func (p *Pipeline) SetHeartbeat(hb *heartbeat.Emitter) {
	p.mu.Lock()
	p.hb = hb
	p.mu.Unlock()
}

// Lines returns how many lines the loop has logged.
func (p *Pipeline) Lines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Run blocks until the ingestor is exhausted or ctx ends. Both are a clean
// stop.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	lines := make(chan string, p.cfg.Run.BufferSize)

	g.Go(func() error {
		p.logger.Debugf("started ingestor: %s", p.source.Name())
		return p.source.Start(gCtx, lines)
	})

	var changes <-chan *config.Config
	if p.configSource != nil {
		changes = p.configSource.Changes()
		g.Go(func() error {
			return p.configSource.Run(gCtx)
		})
	}

	tick := p.tick
	if tick == nil {
		ticker := time.NewTicker(p.cfg.Run.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	g.Go(func() error {
		// End of input stops the other members too.
		defer cancel()
		return p.process(gCtx, lines, tick, changes)
	})

	err := g.Wait()
	p.logger.Infof("pipeline stopped: lines=%d", p.Lines())

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (p *Pipeline) process(ctx context.Context, lines <-chan string, tick <-chan time.Time, changes <-chan *config.Config) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			p.lc.Info(line)
			p.beat(true)

		case <-tick:
			p.beat(false)

		case cfg := <-changes:
			p.Reconfigure(cfg)
		}
	}
}

func (p *Pipeline) beat(counted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if counted {
		p.lines++
	}
	p.hb.Check(p.lc, p.message, p.replace)
}

// Reconfigure applies the heartbeat interval, elapsed policy, message and
// replace flag of cfg. The heartbeat name is fixed for the emitter's
// lifetime, and sink settings need a restart; both are ignored.
func (p *Pipeline) Reconfigure(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if p.overrides != nil {
		p.overrides(cfg)
	}

	interval := heartbeat.ParseInterval(cfg.Heartbeat.Interval, cfg.Heartbeat.DefaultInterval)
	policy := heartbeat.ParseElapsedPolicy(cfg.Heartbeat.Elapsed)

	p.mu.Lock()
	old := p.hb.Interval()
	name := p.hb.Name()
	p.hb.SetInterval(interval)
	p.hb.SetElapsedPolicy(policy)
	p.message = cfg.Heartbeat.Message
	p.replace = cfg.Heartbeat.Replace
	p.mu.Unlock()

	if old != interval {
		p.logger.Infof("heartbeat interval changed: %ds -> %ds", old, interval)
	}
	if cfg.Heartbeat.Name != "" && cfg.Heartbeat.Name != name {
		p.logger.Warningf("heartbeat name change needs a restart: keeping %q", name)
	}
}
