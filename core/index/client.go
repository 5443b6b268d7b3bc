package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"index-checker/core/reconcile"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client wraps the Elasticsearch client with a circuit breaker and maps
// failures onto the reconcile error taxonomy.
type Client struct {
	cfg     Config
	es      *elasticsearch.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// NewClient creates an index client. It does not contact the cluster; use
// Ping to check connectivity.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.SortField == "" {
		cfg.SortField = FieldUID
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		APIKey:       cfg.APIKey,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c := &Client{cfg: cfg, es: es, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "index",
		Timeout: time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Rejected queries are answers, not outages.
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.Status < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", esapi.PingRequest{}, nil)
}

// Reader returns the configured index reader.
func (c *Client) Reader() (reconcile.IndexAdapter, error) {
	switch c.cfg.Reader {
	case "", ReaderSearch:
		return &QueryReader{client: c}, nil
	case ReaderDirect:
		return &DirectReader{client: c}, nil
	default:
		return nil, fmt.Errorf("%w: unknown index reader %q", reconcile.ErrConfiguration, c.cfg.Reader)
	}
}

// do runs one request through the circuit breaker and decodes the JSON
// response into out when out is not nil.
func (c *Client) do(ctx context.Context, op string, req esapi.Request, out any) error {
	if c.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	_, err := c.breaker.Execute(func() (any, error) {
		res, err := req.Do(ctx, c.es)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.IsError() {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return nil, &statusError{Status: res.StatusCode, Body: string(body)}
		}
		if out == nil {
			return nil, nil
		}
		dec := json.NewDecoder(res.Body)
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", op, err)
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}
	return c.classify(op, err)
}

func (c *Client) classify(op string, err error) error {
	var se *statusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("index %s: %w", op, err)
	case errors.As(err, &se):
		if se.Status == http.StatusNotFound || se.Status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s: %v", reconcile.ErrIndexUnavailable, op, err)
		}
		return fmt.Errorf("%w: %s: %v", reconcile.ErrQuery, op, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: %v", reconcile.ErrIndexUnavailable, op, err)
	default:
		c.logger.Debug("Index request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", reconcile.ErrIndexUnavailable, op, err)
	}
}

func encode(body any) (io.Reader, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
