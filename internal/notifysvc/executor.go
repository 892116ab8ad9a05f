package notifysvc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rathix/workflow-engine/internal/config"
	"github.com/rathix/workflow-engine/internal/metrics"
	"github.com/rathix/workflow-engine/internal/outbound"
	"github.com/rathix/workflow-engine/internal/task"
)

// ChannelEndpoints names the single-send and batch-send paths a channel
// backend exposes. Batch may be empty, in which case the executor falls
// back to sequential single sends for that channel (degraded mode).
type ChannelEndpoints struct {
	Single string
	Batch  string
}

// Executor delivers due dispatch rows, either one at a time (SendSingle,
// used for opportunistic immediate delivery) or in periodic batched sweeps
// (RunPeriodic). Run performs an immediate pass followed by a ticker loop,
// so the first sweep never waits a full interval.
type Executor struct {
	store  Store
	render ViewResolver
	client *outbound.Client
	clock  func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	endpoints map[Channel]ChannelEndpoints
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock overrides the executor's time source. Intended for tests.
func WithExecutorClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an Executor delivering through client, rendering
// payloads through render, routing by channel through endpoints.
func NewExecutor(store Store, render ViewResolver, client *outbound.Client, endpoints map[Channel]ChannelEndpoints, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		render:    render,
		client:    client,
		endpoints: endpoints,
		clock:     time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs an immediate RunPeriodic pass, then continues sweeping
// every interval until ctx is cancelled.
func (e *Executor) Run(ctx context.Context, interval time.Duration) {
	e.runOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Executor) runOnce(ctx context.Context) {
	if err := e.RunPeriodic(ctx); err != nil {
		e.logger.Warn("notification executor pass failed", "error", err)
	}
}

// RunPeriodic delivers every dispatch row currently due, grouped by user
// then channel: a user with more than one due row on a channel gets a
// single batched send for that channel, everyone else gets an individual
// send.
func (e *Executor) RunPeriodic(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.NotificationSweepDuration)
	defer timer.ObserveDuration()

	rows, err := e.store.DueDispatches(ctx, e.clock())
	if err != nil {
		return fmt.Errorf("notifysvc: list due dispatches: %w", err)
	}

	for _, byChannel := range groupByUserThenChannel(rows) {
		for channel, group := range byChannel {
			if len(group) == 1 {
				if err := e.sendSingle(ctx, group[0].Dispatch); err != nil {
					e.logger.Warn("single dispatch delivery failed", "dispatch_id", group[0].Dispatch.ID, "error", err)
				}
				continue
			}
			e.sendBatch(ctx, channel, group)
		}
	}
	return nil
}

func groupByUserThenChannel(rows []DueRow) map[string]map[Channel][]DueRow {
	out := make(map[string]map[Channel][]DueRow)
	for _, row := range rows {
		byChannel, ok := out[row.UserRef]
		if !ok {
			byChannel = make(map[Channel][]DueRow)
			out[row.UserRef] = byChannel
		}
		byChannel[row.Dispatch.Channel] = append(byChannel[row.Dispatch.Channel], row)
	}
	return out
}

// SendSingle looks up dispatch id and delivers it individually, marking it
// sent on success. Used both for opportunistic immediate delivery from the
// Factory and for the "engine-notification single <id>" CLI entry point.
func (e *Executor) SendSingle(ctx context.Context, dispatchID int64) error {
	d, ok, err := e.store.Dispatch(ctx, dispatchID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return e.sendSingle(ctx, d)
}

// SendBatch looks up each of ids and delivers them grouped by channel,
// through the same batch/single-send path RunPeriodic uses for naturally
// due rows. Used by the administrative "deliver this batch now" endpoint to
// redeliver an explicit, caller-chosen set of dispatch rows.
func (e *Executor) SendBatch(ctx context.Context, ids []int64) error {
	byChannel := make(map[Channel][]DueRow)
	for _, id := range ids {
		d, ok, err := e.store.Dispatch(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		byChannel[d.Channel] = append(byChannel[d.Channel], DueRow{Dispatch: d})
	}

	for channel, group := range byChannel {
		if len(group) == 1 {
			if err := e.sendSingle(ctx, group[0].Dispatch); err != nil {
				e.logger.Warn("single dispatch delivery failed", "dispatch_id", group[0].Dispatch.ID, "error", err)
			}
			continue
		}
		e.sendBatch(ctx, channel, group)
	}
	return nil
}

// SetEndpoints swaps the executor's channel routing table atomically. Used
// by the config watcher's reload callback so edited notification channel
// URLs take effect without restarting the process.
func (e *Executor) SetEndpoints(endpoints map[Channel]ChannelEndpoints) {
	e.mu.Lock()
	e.endpoints = endpoints
	e.mu.Unlock()
}

func (e *Executor) endpointFor(channel Channel) ChannelEndpoints {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.endpoints[channel]
}

func (e *Executor) sendSingle(ctx context.Context, d Dispatch) error {
	endpoint := e.endpointFor(d.Channel).Single
	payload, err := e.render.Render(ctx, d.View, d.SingleSpec)
	if err != nil {
		return fmt.Errorf("notifysvc: render dispatch %d: %w", d.ID, err)
	}

	result, err := e.client.Send(ctx, task.Dispatch{Path: endpoint, Body: payload})
	if err != nil {
		return fmt.Errorf("notifysvc: send dispatch %d: %w", d.ID, err)
	}
	if result.Status < 200 || result.Status >= 300 {
		return fmt.Errorf("notifysvc: dispatch %d to %s returned status %d", d.ID, endpoint, result.Status)
	}
	metrics.NotificationsSentTotal.WithLabelValues(string(d.Channel), "single").Inc()
	return e.store.MarkSent(ctx, d.ID, e.clock())
}

func (e *Executor) sendBatch(ctx context.Context, channel Channel, group []DueRow) {
	endpoint := e.endpointFor(channel).Batch
	if endpoint == "" {
		for _, row := range group {
			if err := e.sendSingle(ctx, row.Dispatch); err != nil {
				e.logger.Warn("degraded-mode single delivery failed", "dispatch_id", row.Dispatch.ID, "error", err)
			}
		}
		return
	}

	ids := make([]int64, 0, len(group))
	entries := make([]map[string]any, 0, len(group))
	for _, row := range group {
		payload, err := e.render.Render(ctx, row.Dispatch.View, row.Dispatch.BatchSpec)
		if err != nil {
			e.logger.Warn("failed to render batch entry", "dispatch_id", row.Dispatch.ID, "error", err)
			continue
		}
		ids = append(ids, row.Dispatch.ID)
		entries = append(entries, payload)
	}
	if len(ids) == 0 {
		return
	}

	body := map[string]any{
		"notification_dispatch_ids": ids,
		"entries":                   entries,
	}
	result, err := e.client.Send(ctx, task.Dispatch{Path: endpoint, Body: body})
	if err != nil {
		e.logger.Warn("batch delivery failed", "channel", channel, "count", len(ids), "error", err)
		return
	}
	if result.Status < 200 || result.Status >= 300 {
		e.logger.Warn("batch delivery rejected", "channel", channel, "count", len(ids), "status", result.Status)
		return
	}

	metrics.NotificationsSentTotal.WithLabelValues(string(channel), "batch").Add(float64(len(ids)))
	sentAt := e.clock()
	for _, id := range ids {
		if err := e.store.MarkSent(ctx, id, sentAt); err != nil {
			e.logger.Warn("failed to mark dispatch sent", "dispatch_id", id, "error", err)
		}
	}
}

// SetChannelEndpoints implements config.NotificationEndpointUpdater,
// converting the config-level channel routing table into the executor's
// internal Channel-keyed form. This is the hook the config watcher calls
// on every reload, so editing a channel's single_url/batch_url takes
// effect on the next sweep without a restart.
func (e *Executor) SetChannelEndpoints(channels map[string]config.ChannelConfig) {
	endpoints := make(map[Channel]ChannelEndpoints, len(channels))
	for name, cc := range channels {
		endpoints[Channel(name)] = ChannelEndpoints{Single: cc.SingleURL, Batch: cc.BatchURL}
	}
	e.SetEndpoints(endpoints)
}
