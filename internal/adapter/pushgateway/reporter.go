// Package pushgateway publishes per-account event counts to a Prometheus
// push gateway.
package pushgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// AccountLabel is the label carrying the publisher account on the pushed counter.
const AccountLabel = "account"

// Options configures a Reporter.
type Options struct {
	URL        string
	Username   string
	Password   string
	Job        string
	MetricName string
	MetricHelp string
	Timeout    time.Duration
}

// Reporter implements relay.CountReporter.
type Reporter struct {
	baseURL    string
	username   string
	password   string
	job        string
	desc       *prometheus.Desc
	name       string
	help       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReporter creates a push gateway reporter.
func NewReporter(opts Options, logger *slog.Logger) *Reporter {
	if opts.MetricHelp == "" {
		opts.MetricHelp = "twitter earthquake notifications."
	}
	return &Reporter{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		username: opts.Username,
		password: opts.Password,
		job:      opts.Job,
		desc:     prometheus.NewDesc(opts.MetricName, opts.MetricHelp, []string{AccountLabel}, nil),
		name:     opts.MetricName,
		help:     opts.MetricHelp,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}
}

// ReportCount pushes count as the account's counter value and returns the
// gateway's HTTP status. Non-2xx statuses are returned together with an error.
func (r *Reporter) ReportCount(ctx context.Context, account string, count int) (int, error) {
	body, err := r.Encode(account, count)
	if err != nil {
		return 0, err
	}

	target := r.groupURL(account)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	req.SetBasicAuth(r.username, r.password)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("push gateway error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	r.logger.Debug("count pushed", "url", target, "account", account, "count", count, "status", resp.StatusCode)
	return resp.StatusCode, nil
}

// Encode renders the text exposition body for one account:
//
//	# HELP <name> <help>
//	# TYPE <name> counter
//	<name>{account="<account>"} <count>
func (r *Reporter) Encode(account string, count int) ([]byte, error) {
	m, err := prometheus.NewConstMetric(r.desc, prometheus.CounterValue, float64(count), account)
	if err != nil {
		return nil, fmt.Errorf("build metric: %w", err)
	}
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		return nil, fmt.Errorf("write metric: %w", err)
	}

	mf := &dto.MetricFamily{
		Name:   proto.String(r.name),
		Help:   proto.String(r.help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{&pb},
	}

	var buf bytes.Buffer
	if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
		return nil, fmt.Errorf("encode metric: %w", err)
	}
	return buf.Bytes(), nil
}

// groupURL returns <base>/job/<job>/instance/<account>.
func (r *Reporter) groupURL(account string) string {
	return fmt.Sprintf("%s/job/%s/instance/%s", r.baseURL, url.PathEscape(r.job), url.PathEscape(account))
}
