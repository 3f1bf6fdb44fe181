// Package twitter consumes the X (Twitter) API v2 filtered stream.
package twitter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/earthquake-notify/internal/domain"
	"github.com/couchcryptid/earthquake-notify/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

const (
	streamPath = "/2/tweets/search/stream"

	// The API sends a keep-alive newline every 20 seconds.
	defaultStallTimeout = 30 * time.Second
	defaultMinBackoff   = time.Second
	defaultMaxBackoff   = time.Minute
	maxLineSize         = 1 << 20
)

var errStalled = errors.New("stream stalled: no data or keep-alive received")

// StatusError is a non-success HTTP response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("twitter API error: status %d: %s", e.Code, e.Body)
}

// Options configures a Stream.
type Options struct {
	BaseURL      string
	BearerToken  string
	Timeout      time.Duration // for rule requests; the stream itself has none
	DedupSize    int
	StallTimeout time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	Clock        clockwork.Clock
}

// Stream implements relay.Stream on top of the filtered stream endpoint. It
// installs the publisher rules, then reconnects with exponential backoff
// whenever the connection drops.
type Stream struct {
	baseURL      string
	token        string
	apiClient    *http.Client
	streamClient *http.Client
	clock        clockwork.Clock
	seen         *seenCache
	stallTimeout time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewStream creates a filtered stream client.
func NewStream(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Stream {
	s := &Stream{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		token:        opts.BearerToken,
		apiClient:    &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{},
		clock:        opts.Clock,
		seen:         newSeenCache(opts.DedupSize),
		stallTimeout: opts.StallTimeout,
		minBackoff:   opts.MinBackoff,
		maxBackoff:   opts.MaxBackoff,
		logger:       logger,
		metrics:      metrics,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.stallTimeout <= 0 {
		s.stallTimeout = defaultStallTimeout
	}
	if s.minBackoff <= 0 {
		s.minBackoff = defaultMinBackoff
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = max(defaultMaxBackoff, s.minBackoff)
	}
	return s
}

// Run installs the publisher rules and delivers matching posts to h until
// ctx is cancelled. Connection failures are reported through
// h.HandleLifecycle and retried; Run only returns once ctx is done.
func (s *Stream) Run(ctx context.Context, h domain.StreamHandler) error {
	backoff := s.minBackoff
	rulesReady := false
	connectedBefore := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		if !rulesReady {
			if err = s.ReplaceRules(ctx); err == nil {
				rulesReady = true
			}
		}
		if rulesReady {
			err = s.consume(ctx, h, func() {
				if connectedBefore {
					h.HandleLifecycle(domain.LifecycleReconnected, nil)
				} else {
					h.HandleLifecycle(domain.LifecycleConnected, nil)
				}
				connectedBefore = true
				backoff = s.minBackoff
			})
		}
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, errConnectionLost) {
			h.HandleLifecycle(domain.LifecycleDisconnected, err)
		} else {
			h.HandleLifecycle(domain.LifecycleError, err)
		}
		h.HandleLifecycle(domain.LifecycleReconnectAttempt, nil)

		s.logger.Debug("stream backing off", "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(backoff):
		}
		backoff = retry.NextBackoff(backoff, s.maxBackoff)
	}
}

var errConnectionLost = errors.New("stream connection lost")

// consume holds one stream connection open. onConnect runs once the API has
// accepted the connection. The returned error wraps errConnectionLost when an
// established connection ended.
func (s *Stream) consume(ctx context.Context, h domain.StreamHandler, onConnect func()) error {
	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watchdog := s.clock.AfterFunc(s.stallTimeout, func() { cancel(errStalled) })
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)

	resp, err := s.streamClient.Do(req)
	if err != nil {
		if cause := context.Cause(connCtx); errors.Is(cause, errStalled) {
			return cause
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	onConnect()
	watchdog.Reset(s.stallTimeout)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		watchdog.Reset(s.stallTimeout)

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue // keep-alive
		}
		if err := s.handleLine(connCtx, line, h); err != nil {
			return fmt.Errorf("%w: %w", errConnectionLost, err)
		}
	}

	err = scanner.Err()
	if cause := context.Cause(connCtx); errors.Is(cause, errStalled) {
		err = cause
	}
	if err == nil {
		err = io.EOF
	}
	return fmt.Errorf("%w: %w", errConnectionLost, err)
}

// handleLine decodes one stream payload and hands it to h. A payload that
// carries only errors ends the connection.
func (s *Stream) handleLine(ctx context.Context, line []byte, h domain.StreamHandler) error {
	var payload streamPayload
	if err := json.Unmarshal(line, &payload); err != nil {
		s.logger.Warn("skipping undecodable stream payload", "error", err, "size", len(line))
		return nil
	}
	if payload.Data == nil {
		if len(payload.Errors) > 0 {
			return fmt.Errorf("stream error: %s", payload.Errors[0])
		}
		return nil
	}

	tweet := payload.Data
	if s.seen.seen(tweet.ID) {
		s.logger.Debug("duplicate post dropped", "id", tweet.ID)
		s.metrics.DuplicateDropped.Inc()
		return nil
	}

	username := payload.username(tweet.AuthorID)
	if username == "" {
		s.logger.Warn("author not found in includes", "id", tweet.ID, "author_id", tweet.AuthorID)
		username = tweet.AuthorID
	}

	h.HandleMessage(ctx, domain.NewMessage(tweet.ID, username, tweet.Text))
	return nil
}

func (s *Stream) streamURL() string {
	params := url.Values{
		"expansions":  {"author_id"},
		"user.fields": {"name"},
	}
	return s.baseURL + streamPath + "?" + params.Encode()
}

func (s *Stream) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", "earthquake-notify")
}

// Stream payload types.

type streamPayload struct {
	Data     *tweet     `json:"data"`
	Includes includes   `json:"includes"`
	Errors   []apiError `json:"errors"`
}

type tweet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

type includes struct {
	Users []user `json:"users"`
}

type user struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func (p streamPayload) username(authorID string) string {
	for _, u := range p.Includes.Users {
		if u.ID == authorID {
			return u.Username
		}
	}
	return ""
}
