package relay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/earthquake-notify/internal/domain"
	"github.com/couchcryptid/earthquake-notify/internal/observability"
	"github.com/couchcryptid/earthquake-notify/internal/relay"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alertText = "【気象庁情報】12日　12時31分頃　茨城県南部（N36.1/E139.9）にて　最大震度3（M5）の地震が発生。　震源の深さは50km。"
	quietText = "［気象庁情報］12日　18時42分頃　宮城県沖（N38.6/E142.2）にて　最大震度2（M4）の地震が発生。　震源の深さは40km。"
)

// --- mocks ---

type mockSpeech struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (m *mockSpeech) Speak(_ context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return m.err
}

func (m *mockSpeech) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type mockPlayer struct {
	mu    sync.Mutex
	plays int
	err   error
	panic bool
}

func (m *mockPlayer) Play(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	if m.panic {
		panic("audio device gone")
	}
	return m.err
}

func (m *mockPlayer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

type report struct {
	account string
	count   int
}

type mockReporter struct {
	mu      sync.Mutex
	reports []report
	err     error
	block   chan struct{}
}

func (m *mockReporter) ReportCount(_ context.Context, account string, count int) (int, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report{account: account, count: count})
	if m.err != nil {
		return 0, m.err
	}
	return 200, nil
}

func (m *mockReporter) calls() []report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]report(nil), m.reports...)
}

type fakeStream struct {
	messages []domain.Message
}

func (s *fakeStream) Run(ctx context.Context, h domain.StreamHandler) error {
	h.HandleLifecycle(domain.LifecycleConnected, nil)
	for _, msg := range s.messages {
		h.HandleMessage(ctx, msg)
	}
	<-ctx.Done()
	return ctx.Err()
}

// lateStream delivers its message only after ctx is cancelled, like a reader
// that had already fetched a record when shutdown began.
type lateStream struct {
	msg domain.Message
}

func (s *lateStream) Run(ctx context.Context, h domain.StreamHandler) error {
	h.HandleLifecycle(domain.LifecycleConnected, nil)
	<-ctx.Done()
	h.HandleMessage(ctx, s.msg)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	speech   *mockSpeech
	player   *mockPlayer
	reporter *mockReporter
	tasks    *relay.Tasks
	metrics  *observability.Metrics
	relay    *relay.Relay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		speech:   &mockSpeech{},
		player:   &mockPlayer{},
		reporter: &mockReporter{},
		metrics:  observability.NewMetricsForTesting(),
	}
	f.tasks = relay.NewTasks(context.Background(), discardLogger(), func(name string, _ error) {
		f.metrics.DeliveryFailures.WithLabelValues(name).Inc()
	})
	f.relay = relay.New(f.speech, f.player, f.reporter, f.tasks, discardLogger(), f.metrics)
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.tasks.Wait(ctx))
}

// --- tests ---

func TestRelay_AboveThresholdSpeaks(t *testing.T) {
	f := newFixture(t)

	f.relay.HandleMessage(context.Background(), domain.NewMessage("1", "earthquake_jp", alertText))
	f.wait(t)

	assert.Equal(t, []string{"地震です。震度3、茨城県南部"}, f.speech.calls())
	assert.Equal(t, 0, f.player.calls())
	assert.Equal(t, []report{{account: "earthquake_jp", count: 1}}, f.reporter.calls())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues(relay.TargetSpeech)), 0)
}

func TestRelay_BelowThresholdBeeps(t *testing.T) {
	f := newFixture(t)

	f.relay.HandleMessage(context.Background(), domain.NewMessage("1", "earthquake_jp", quietText))
	f.wait(t)

	assert.Empty(t, f.speech.calls())
	assert.Equal(t, 1, f.player.calls())
	assert.Equal(t, []report{{account: "earthquake_jp", count: 1}}, f.reporter.calls())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues(relay.TargetBeep)), 0)
}

func TestRelay_UnknownAccountBeepsAndCounts(t *testing.T) {
	f := newFixture(t)

	f.relay.HandleMessage(context.Background(), domain.NewMessage("1", "someone_else", alertText))
	f.wait(t)

	assert.Empty(t, f.speech.calls())
	assert.Equal(t, 1, f.player.calls())
	assert.Equal(t, 1, f.relay.Count("someone_else"))
}

func TestRelay_CountsPerAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.relay.HandleMessage(ctx, domain.NewMessage("1", "yurekuru", "dummy"))
	f.relay.HandleMessage(ctx, domain.NewMessage("2", "earthquake_jp", quietText))
	f.relay.HandleMessage(ctx, domain.NewMessage("3", "yurekuru", "dummy"))
	f.wait(t)

	assert.Equal(t, 2, f.relay.Count("yurekuru"))
	assert.Equal(t, 1, f.relay.Count("earthquake_jp"))
	assert.Equal(t, 0, f.relay.Count("nobody"))
	assert.Equal(t, map[string]int{"yurekuru": 2, "earthquake_jp": 1}, f.relay.Counts())
	assert.ElementsMatch(t, []report{
		{account: "yurekuru", count: 1},
		{account: "earthquake_jp", count: 1},
		{account: "yurekuru", count: 2},
	}, f.reporter.calls())
	assert.Equal(t, 3, f.player.calls())
}

func TestRelay_DeliveryFailuresDoNotStopProcessing(t *testing.T) {
	f := newFixture(t)
	f.speech.err = errors.New("gateway down")
	f.player.panic = true
	f.reporter.err = errors.New("401 unauthorized")
	ctx := context.Background()

	f.relay.HandleMessage(ctx, domain.NewMessage("1", "earthquake_jp", alertText))
	f.relay.HandleMessage(ctx, domain.NewMessage("2", "earthquake_jp", quietText))
	f.relay.HandleMessage(ctx, domain.NewMessage("3", "earthquake_jp", alertText))
	f.wait(t)

	assert.Len(t, f.speech.calls(), 2)
	assert.Equal(t, 1, f.player.calls())
	assert.Len(t, f.reporter.calls(), 3)
	assert.Equal(t, 3, f.relay.Count("earthquake_jp"))
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.DeliveryFailures.WithLabelValues(relay.TargetSpeech)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.DeliveryFailures.WithLabelValues(relay.TargetBeep)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(f.metrics.DeliveryFailures.WithLabelValues(relay.TargetPushGateway)), 0)
}

func TestRelay_HandleMessageDoesNotBlockOnDelivery(t *testing.T) {
	f := newFixture(t)
	f.reporter.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		f.relay.HandleMessage(context.Background(), domain.NewMessage("1", "yurekuru", "dummy"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleMessage blocked on a pending delivery")
	}

	close(f.reporter.block)
	f.wait(t)
	assert.Len(t, f.reporter.calls(), 1)
}

func TestRelay_Readiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Error(t, f.relay.CheckReadiness(ctx))

	f.relay.HandleLifecycle(domain.LifecycleConnected, nil)
	require.NoError(t, f.relay.CheckReadiness(ctx))
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StreamConnected), 0)

	f.relay.HandleLifecycle(domain.LifecycleDisconnected, errors.New("EOF"))
	require.Error(t, f.relay.CheckReadiness(ctx))
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.StreamConnected), 0)

	f.relay.HandleLifecycle(domain.LifecycleReconnectAttempt, nil)
	f.relay.HandleLifecycle(domain.LifecycleReconnected, nil)
	require.NoError(t, f.relay.CheckReadiness(ctx))
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StreamEvents.WithLabelValues(string(domain.LifecycleReconnected))), 0)
}

func TestRelay_Run(t *testing.T) {
	f := newFixture(t)
	stream := &fakeStream{messages: []domain.Message{
		domain.NewMessage("1", "earthquake_jp", alertText),
		domain.NewMessage("2", "yurekuru", "dummy"),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, f.relay.Run(ctx, stream))
	f.wait(t)

	assert.Len(t, f.speech.calls(), 1)
	assert.Equal(t, 1, f.player.calls())
	require.NoError(t, f.relay.CheckReadiness(context.Background()))
}

func TestRelay_DeliveryAfterCancelIsDrainedOnShutdown(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- f.relay.Run(ctx, &lateStream{msg: domain.NewMessage("1", "earthquake_jp", quietText)})
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.tasks.Close()
	f.wait(t)

	assert.Equal(t, 1, f.player.calls())
	assert.Equal(t, []report{{account: "earthquake_jp", count: 1}}, f.reporter.calls())
}

func TestRelay_MessageAfterCloseIsCountedNotDelivered(t *testing.T) {
	f := newFixture(t)
	f.tasks.Close()

	f.relay.HandleMessage(context.Background(), domain.NewMessage("1", "earthquake_jp", alertText))
	f.wait(t)

	assert.Empty(t, f.speech.calls())
	assert.Empty(t, f.reporter.calls())
	assert.Equal(t, 1, f.relay.Count("earthquake_jp"))
}
