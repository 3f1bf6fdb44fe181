package relay

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/earthquake-notify/internal/domain"
	"github.com/couchcryptid/earthquake-notify/internal/observability"
)

// Delivery targets, used as task names and metric labels.
const (
	TargetSpeech      = "speech"
	TargetBeep        = "beep"
	TargetPushGateway = "pushgateway"
)

// SpeechNotifier pushes a message to a text-to-speech gateway.
type SpeechNotifier interface {
	Speak(ctx context.Context, message string) error
}

// AlertPlayer plays the local alert sound.
type AlertPlayer interface {
	Play(ctx context.Context) error
}

// CountReporter publishes the running per-account event count. It returns the
// HTTP status of the push.
type CountReporter interface {
	ReportCount(ctx context.Context, account string, count int) (int, error)
}

// Stream delivers posts to a handler until ctx is cancelled.
type Stream interface {
	Run(ctx context.Context, h domain.StreamHandler) error
}

// Relay classifies each delivered post, then announces it and reports the
// account's running count in the background.
type Relay struct {
	speech   SpeechNotifier
	player   AlertPlayer
	reporter CountReporter
	tasks    *Tasks
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu        sync.Mutex
	counts    map[string]int
	connected atomic.Bool
}

// New creates a Relay. Deliveries run on tasks.
func New(speech SpeechNotifier, player AlertPlayer, reporter CountReporter, tasks *Tasks, logger *slog.Logger, metrics *observability.Metrics) *Relay {
	return &Relay{
		speech:   speech,
		player:   player,
		reporter: reporter,
		tasks:    tasks,
		logger:   logger,
		metrics:  metrics,
		counts:   make(map[string]int),
	}
}

// Run consumes the stream until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, stream Stream) error {
	r.logger.Info("relay started", "publishers", domain.Publishers())
	err := stream.Run(ctx, r)
	if ctx.Err() != nil {
		r.logger.Info("relay stopping", "reason", ctx.Err())
		return nil
	}
	return err
}

// HandleMessage classifies msg, starts exactly one notification, and reports
// the updated count for its account. It never blocks on delivery.
func (r *Relay) HandleMessage(_ context.Context, msg domain.Message) {
	result := domain.Classify(msg.Account, msg.Text)
	r.logger.Info("message received",
		"id", msg.ID,
		"account", msg.Account,
		"text", msg.Text,
		"tier", result.Tier,
		"location", result.Location,
	)
	r.metrics.MessagesReceived.WithLabelValues(msg.Account).Inc()
	r.metrics.SeverityTier.WithLabelValues(msg.Account).Observe(float64(result.Tier))

	r.dispatch(result)

	r.report(msg.Account, r.increment(msg.Account))
}

func (r *Relay) increment(account string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[account]++
	return r.counts[account]
}

// Count returns the number of messages handled for account in this session.
func (r *Relay) Count(account string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[account]
}

// Counts returns a snapshot of every account's count.
func (r *Relay) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.counts)
}

func (r *Relay) dispatch(result domain.Result) {
	if result.Notify() {
		message := result.Message
		r.metrics.Notifications.WithLabelValues(TargetSpeech).Inc()
		r.logger.Info("speech notification", "message", message)
		r.tasks.Go(TargetSpeech, func(ctx context.Context) error {
			return r.speech.Speak(ctx, message)
		})
		return
	}

	r.metrics.Notifications.WithLabelValues(TargetBeep).Inc()
	r.logger.Info("beep", "tier", result.Tier)
	r.tasks.Go(TargetBeep, func(ctx context.Context) error {
		return r.player.Play(ctx)
	})
}

func (r *Relay) report(account string, count int) {
	r.tasks.Go(TargetPushGateway, func(ctx context.Context) error {
		status, err := r.reporter.ReportCount(ctx, account, count)
		if err != nil {
			return err
		}
		r.logger.Debug("count reported", "account", account, "count", count, "status", status)
		return nil
	})
}

// HandleLifecycle logs stream transitions and tracks connection state.
func (r *Relay) HandleLifecycle(event domain.LifecycleEvent, err error) {
	r.metrics.StreamEvents.WithLabelValues(string(event)).Inc()

	switch event {
	case domain.LifecycleConnected, domain.LifecycleReconnected:
		r.connected.Store(true)
		r.metrics.StreamConnected.Set(1)
		r.logger.Info("stream event", "event", event)
	case domain.LifecycleDisconnected:
		r.connected.Store(false)
		r.metrics.StreamConnected.Set(0)
		r.logger.Warn("stream event", "event", event, "error", err)
	case domain.LifecycleReconnectAttempt:
		r.logger.Warn("stream event", "event", event)
	default:
		r.logger.Error("stream event", "event", event, "error", err)
	}
}

// CheckReadiness returns nil once the stream is connected.
func (r *Relay) CheckReadiness(_ context.Context) error {
	if !r.connected.Load() {
		return errors.New("stream is not connected")
	}
	return nil
}
