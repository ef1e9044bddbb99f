// Package metricclient talks to the metrics service for metric definitions and
// to the loader service for label threshold checks.
package metricclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/omarbridgetech/AlertHub/internal/condition"
)

const (
	maxThresholdHours = 24
	maxErrorBody      = 512
)

// StatusError is a non-2xx answer from a dependency.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

type Config struct {
	MetricsBaseURL string
	LoaderBaseURL  string
	CacheTTL       time.Duration
	HTTPClient     *http.Client
}

// Client implements condition.MetricLookup and condition.ThresholdOracle.
type Client struct {
	metricsBaseURL string
	loaderBaseURL  string
	http           *http.Client
	metrics        *cache.Cache
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Client{
		metricsBaseURL: strings.TrimRight(cfg.MetricsBaseURL, "/"),
		loaderBaseURL:  strings.TrimRight(cfg.LoaderBaseURL, "/"),
		http:           httpClient,
		metrics:        cache.New(ttl, 2*ttl),
		logger:         logger,
	}
}

type metricResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Label          string `json:"label"`
	Threshold      int    `json:"threshold"`
	TimeFrameHours int    `json:"timeFrameHours"`
}

// GetMetric resolves a metric definition. Unknown ids wrap
// condition.ErrMetricNotFound and out of range definitions wrap
// condition.ErrInvalidMetric; both are permanent.
func (c *Client) GetMetric(ctx context.Context, id condition.MetricRef) (condition.Metric, error) {
	key := string(id)
	if cached, ok := c.metrics.Get(key); ok {
		return cached.(condition.Metric), nil
	}

	endpoint := c.metricsBaseURL + "/api/metrics/" + url.PathEscape(key)

	var resp metricResponse
	if err := c.getJSON(ctx, "metrics service", endpoint, &resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return condition.Metric{}, fmt.Errorf("metric %s: %w", key, condition.ErrMetricNotFound)
		}
		return condition.Metric{}, err
	}

	metric := condition.Metric{
		ID:             resp.ID,
		Name:           resp.Name,
		Label:          normalizeLabel(resp.Label),
		ThresholdCount: resp.Threshold,
		TimeFrameHours: resp.TimeFrameHours,
	}
	if metric.ID == "" {
		metric.ID = key
	}

	if err := validateMetric(metric); err != nil {
		return condition.Metric{}, fmt.Errorf("metric %s: %w", key, err)
	}

	c.metrics.Set(key, metric, cache.DefaultExpiration)
	return metric, nil
}

// CheckThreshold asks the loader whether the owner has at least threshold
// events tagged label in the last hours.
func (c *Client) CheckThreshold(ctx context.Context, ownerID, label string, hours, threshold int) (bool, error) {
	q := url.Values{}
	q.Set("ownerId", ownerID)
	q.Set("label", label)
	q.Set("hours", strconv.Itoa(hours))
	q.Set("threshold", strconv.Itoa(threshold))

	endpoint := c.loaderBaseURL + "/loader_api/checkLabelThreshold?" + q.Encode()

	var met bool
	if err := c.getJSON(ctx, "loader service", endpoint, &met); err != nil {
		return false, err
	}

	c.logger.Debug("threshold checked",
		"owner_id", ownerID,
		"label", label,
		"hours", hours,
		"threshold", threshold,
		"met", met,
	)

	return met, nil
}

func (c *Client) getJSON(ctx context.Context, service, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", service, err)
	}

	return nil
}

// normalizeLabel maps enum style labels such as HELP_WANTED onto the
// lower case form the loader stores.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func validateMetric(m condition.Metric) error {
	switch {
	case m.Label == "":
		return fmt.Errorf("%w: label is empty", condition.ErrInvalidMetric)
	case m.ThresholdCount < 1:
		return fmt.Errorf("%w: threshold %d is below 1", condition.ErrInvalidMetric, m.ThresholdCount)
	case m.TimeFrameHours < 1 || m.TimeFrameHours > maxThresholdHours:
		return fmt.Errorf("%w: time frame %dh is outside 1..%d", condition.ErrInvalidMetric, m.TimeFrameHours, maxThresholdHours)
	}
	return nil
}
