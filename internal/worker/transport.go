package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// perfEpoch anchors the monotonic timestamps every RequestRecord carries.
// time.Since reads the monotonic clock, so perf timestamps are immune to
// wall-clock adjustment; they are only ever compared within one process.
var perfEpoch = time.Now()

// PerfNow returns the current monotonic timestamp in nanoseconds.
func PerfNow() int64 { return int64(time.Since(perfEpoch)) }

// SendResult is everything one HTTP attempt produced, before it is folded
// into a RequestRecord.
type SendResult struct {
	Status          int
	Responses       []models.RawResponse
	StartPerfNs     int64
	RecvStartPerfNs int64
	EndPerfNs       int64
	TimestampNs     int64
}

// Transport sends inference requests over one pooled HTTP client per worker
type Transport struct {
	client *http.Client
	logger zerolog.Logger
}

// NewTransport builds a Transport with the configured request timeout.
func NewTransport(timeout time.Duration, logger zerolog.Logger) *Transport {
	return &Transport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// BuildURL assembles the request URL from the endpoint base, the adapter's
// path (or a custom override), and optional query params.
func BuildURL(baseURL, adapterPath, customEndpoint string, urlParams map[string]string) (string, error) {
	path := adapterPath
	if customEndpoint != "" {
		path = customEndpoint
	}
	u, err := url.Parse(baseURL + path)
	if err != nil {
		return "", aierrors.Wrap(aierrors.KindTransport, "build_url", err)
	}
	if len(urlParams) > 0 {
		q := u.Query()
		for k, v := range urlParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Send POSTs body to reqURL and collects timed responses: a single body for
// unary, one RawResponse per SSE message for streaming.
// Transport failures (status >= 400, SSE error events, timeouts) come back
// as an error alongside whatever result was captured; the caller folds both
// into the RequestRecord and the run continues.
func (t *Transport) Send(ctx context.Context, reqURL string, headers map[string]string, body []byte, streaming bool) (*SendResult, error) {
	result := &SendResult{TimestampNs: time.Now().UnixNano()}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return result, aierrors.Wrap(aierrors.KindTransport, "build_request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	result.StartPerfNs = PerfNow()
	resp, err := t.client.Do(req)
	if err != nil {
		result.EndPerfNs = PerfNow()
		return result, aierrors.Wrap(aierrors.KindTransport, "send", err)
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.RecvStartPerfNs = PerfNow()

	if resp.StatusCode >= 400 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		result.EndPerfNs = PerfNow()
		return result, aierrors.FromHTTPStatus(resp.StatusCode, string(excerpt))
	}

	if streaming {
		err = t.readStream(resp.Body, result)
	} else {
		err = t.readUnary(resp.Body, result)
	}
	result.EndPerfNs = PerfNow()
	return result, err
}

func (t *Transport) readUnary(body io.Reader, result *SendResult) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return aierrors.Wrap(aierrors.KindTransport, "read_body", err)
	}
	result.Responses = append(result.Responses, models.RawResponse{PerfNs: PerfNow(), Body: data})
	return nil
}

// readStream reads the SSE body in chunks, stamping each complete message
// with the arrival time of the chunk that completed it. The [DONE] sentinel
// is consumed without producing a response.
func (t *Transport) readStream(body io.Reader, result *SendResult) error {
	var parser SSEParser
	chunk := make([]byte, 8192)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			perfNs := PerfNow()
			for _, msg := range parser.Feed(chunk[:n], perfNs) {
				if err := t.collectSSEMessage(msg, result); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return aierrors.Wrap(aierrors.KindTransport, "read_stream", readErr)
		}
	}

	if msg, ok := parser.Flush(PerfNow()); ok {
		if err := t.collectSSEMessage(msg, result); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) collectSSEMessage(msg SSEMessage, result *SendResult) error {
	if err := msg.CheckError(); err != nil {
		return err
	}
	if msg.IsDone() {
		return nil
	}
	data := msg.DataContent()
	if data == "" {
		return nil
	}
	result.Responses = append(result.Responses, models.RawResponse{PerfNs: msg.PerfNs, Body: []byte(data)})
	return nil
}

// Headers builds the request header set.
func Headers(streaming bool, apiKey, xRequestID, xCorrelationID string, user map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if streaming {
		h["Accept"] = "text/event-stream"
	}
	if apiKey != "" {
		h["Authorization"] = "Bearer " + apiKey
	}
	for k, v := range user {
		h[k] = v
	}
	h["X-Request-ID"] = xRequestID
	h["X-Correlation-ID"] = xCorrelationID
	return h
}
