package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// RecordBatchFunc receives one poll's worth of TelemetryRecords.
type RecordBatchFunc func(records []models.TelemetryRecord)

// ErrorFunc receives a collector failure as ErrorDetails.
type ErrorFunc func(details aierrors.ErrorDetails)

// Collector polls one DCGM Prometheus endpoint on a fixed interval. Each
// collector owns one HTTP client session.
type Collector struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   zerolog.Logger

	onBatch RecordBatchFunc
	onError ErrorFunc
}

// NewCollector builds a collector for one endpoint.
func NewCollector(url string, interval time.Duration, logger zerolog.Logger, onBatch RecordBatchFunc, onError ErrorFunc) *Collector {
	if interval <= 0 {
		interval = 330 * time.Millisecond
	}
	return &Collector{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger.With().Str("dcgm_url", url).Logger(),
		onBatch:  onBatch,
		onError:  onError,
	}
}

// Run polls until ctx is cancelled. An individual poll failure reports via
// the error callback and does not stop the loop.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.logger.Debug().Err(err).Msg("telemetry: poll failed")
				if c.onError != nil {
					c.onError(aierrors.FromError(err))
				}
			}
		}
	}
}

func (c *Collector) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return aierrors.Wrap(aierrors.KindTelemetry, "poll", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return aierrors.Wrap(aierrors.KindTelemetry, "poll", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return aierrors.FromHTTPStatus(resp.StatusCode, "dcgm scrape failed")
	}

	records, err := ParseDCGM(resp.Body, c.url, time.Now().UnixNano())
	if err != nil {
		return err
	}
	if len(records) > 0 && c.onBatch != nil {
		c.onBatch(records)
	}
	return nil
}
