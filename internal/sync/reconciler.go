// Package sync implements the reconciliation loop: it assembles the desired
// entity set from all sources, diffs it against the server state through the
// identity store, and drives the Uptime Kuma API to match, with dependency
// ordering, deletion grace periods, and per-entity failure isolation.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/internal/metrics"
	"github.com/autokuma/autokuma/internal/source"
	"github.com/autokuma/autokuma/internal/state"
	"github.com/autokuma/autokuma/internal/template"
	"github.com/autokuma/autokuma/pkg/kuma"
)

// debounceWindow coalesces bursts of change notifications into one tick.
const debounceWindow = 300 * time.Millisecond

// minIdleInterval is the floor between consecutive ticks, so a noisy source
// cannot thrash the server.
const minIdleInterval = time.Second

// kumaAPI is the slice of the client the reconciler drives; *kuma.Client
// satisfies it, tests use a fake.
type kumaAPI interface {
	EnsureConnected(ctx context.Context) error
	AuthToken() string

	GetMonitors() (kuma.MonitorList, error)
	AddMonitor(ctx context.Context, monitor *kuma.Monitor) error
	EditMonitor(ctx context.Context, monitor *kuma.Monitor) error
	DeleteMonitor(ctx context.Context, id int) error
	PauseMonitor(ctx context.Context, id int) error
	ResumeMonitor(ctx context.Context, id int) error

	GetTags(ctx context.Context) ([]kuma.TagDefinition, error)
	AddTag(ctx context.Context, tag *kuma.TagDefinition) error
	EditTag(ctx context.Context, tag *kuma.TagDefinition) error
	DeleteTag(ctx context.Context, id int) error

	GetNotifications() ([]kuma.Notification, error)
	AddNotification(ctx context.Context, notification *kuma.Notification) error
	EditNotification(ctx context.Context, notification *kuma.Notification) error
	DeleteNotification(ctx context.Context, id int) error

	GetDockerHosts() ([]kuma.DockerHost, error)
	AddDockerHost(ctx context.Context, host *kuma.DockerHost) error
	EditDockerHost(ctx context.Context, host *kuma.DockerHost) error
	DeleteDockerHost(ctx context.Context, id int) error

	GetStatusPages() (kuma.StatusPageList, error)
	GetStatusPage(ctx context.Context, slug string) (kuma.StatusPage, error)
	AddStatusPage(ctx context.Context, page *kuma.StatusPage) error
	EditStatusPage(ctx context.Context, page *kuma.StatusPage) error
	DeleteStatusPage(ctx context.Context, slug string) error

	GetMaintenances() (kuma.MaintenanceList, error)
	AddMaintenance(ctx context.Context, maintenance *kuma.Maintenance) error
	EditMaintenance(ctx context.Context, maintenance *kuma.Maintenance) error
	DeleteMaintenance(ctx context.Context, id int) error
	PauseMaintenance(ctx context.Context, id int) error
	ResumeMaintenance(ctx context.Context, id int) error
}

// Reconciler owns the loop. It is the single writer of both the identity
// store and the remote client.
type Reconciler struct {
	cfg     *config.Config
	client  kumaAPI
	store   *state.Store
	synth   *entity.Synthesizer
	sources []source.Source
	notify  chan struct{}
	metrics *metrics.Metrics
	logger  *zap.Logger

	onConverged func() // invoked after the first clean tick
}

// NewReconciler wires the loop. notify is the shared change-notification
// channel the sources nudge.
func NewReconciler(
	cfg *config.Config,
	client kumaAPI,
	store *state.Store,
	synth *entity.Synthesizer,
	sources []source.Source,
	notify chan struct{},
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		client:  client,
		store:   store,
		synth:   synth,
		sources: sources,
		notify:  notify,
		metrics: m,
		logger:  logger,
	}
}

// OnConverged registers a callback fired after the first successful tick.
func (r *Reconciler) OnConverged(fn func()) { r.onConverged = fn }

// Run starts the sources and executes ticks until ctx is cancelled. Ticks
// are triggered by the sync interval and by coalesced change notifications;
// a tick in progress queues further notifications for the next one.
func (r *Reconciler) Run(ctx context.Context) error {
	defer func() {
		for _, src := range r.sources {
			_ = src.Close()
		}
	}()
	for _, src := range r.sources {
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("starting %s source: %w", src.Name(), err)
		}
		r.logger.Info("source started", zap.String("source", src.Name()))
	}

	interval := r.cfg.SyncIntervalDuration()
	r.logger.Info("reconciler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	converged := false
	var lastTick time.Time

	runTick := func() {
		if wait := minIdleInterval - time.Since(lastTick); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		lastTick = time.Now()

		if err := r.Tick(ctx); err != nil {
			r.metrics.TicksTotal.WithLabelValues("error").Inc()
			r.logger.Warn("tick failed", zap.Error(err))
			return
		}
		r.metrics.TicksTotal.WithLabelValues("success").Inc()
		if !converged {
			converged = true
			if r.onConverged != nil {
				r.onConverged()
			}
		}
	}

	runTick()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			runTick()
		case <-r.notify:
			r.debounce(ctx)
			runTick()
		}
	}
}

// debounce absorbs the burst that usually follows a first notification
// (a container restart emits several events back to back).
func (r *Reconciler) debounce(ctx context.Context) {
	timer := time.NewTimer(debounceWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-timer.C:
			return
		}
	}
}

// Tick runs one reconcile pass.
func (r *Reconciler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if err := r.client.EnsureConnected(ctx); err != nil {
		r.metrics.ConnectionStatus.Set(0)
		return err
	}
	r.metrics.ConnectionStatus.Set(1)

	if token := r.client.AuthToken(); token != "" {
		if err := r.store.StoreAuthToken(token); err != nil {
			r.logger.Warn("cannot cache auth token", zap.Error(err))
		}
	}

	if err := r.migrateIfNeeded(ctx); err != nil {
		return err
	}

	actual, err := r.fetchActual(ctx)
	if err != nil {
		return err
	}

	if err := r.cleanStore(actual); err != nil {
		return err
	}

	desired, err := r.collectDesired(ctx)
	if err != nil {
		return err
	}

	return r.execute(ctx, desired, actual)
}

// collectDesired gathers bundles from every source and synthesizes the
// desired entity set. A source that cannot enumerate fails the tick: its
// absence must not read as mass deletion.
func (r *Reconciler) collectDesired(ctx context.Context) (map[string]entity.Entity, error) {
	var bundles []entity.Bundle
	for _, src := range r.sources {
		sourceBundles, err := src.Bundles(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		r.metrics.SourceBundles.WithLabelValues(src.Name()).Set(float64(len(sourceBundles)))
		bundles = append(bundles, sourceBundles...)
	}

	desired, errs := r.synth.Synthesize(bundles)
	for _, err := range errs {
		r.metrics.SynthesisErrorsTotal.WithLabelValues(errorClass(err)).Inc()
		r.logger.Warn("entity dropped from tick", zap.Error(err))
	}

	entity.BreakParentCycles(desired, r.logger)

	counts := make(map[entity.Kind]int)
	for _, e := range desired {
		counts[e.Kind]++
	}
	for _, kind := range entity.CreateOrder {
		r.metrics.EntitiesDesired.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}
	return desired, nil
}

func errorClass(err error) string {
	var parseErr *entity.ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	var templateErr *template.Error
	if errors.As(err, &templateErr) {
		return "template"
	}
	return "other"
}
