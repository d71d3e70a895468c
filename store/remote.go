package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"
)

// max record size accepted from a gateway
const maxRemoteValueBytes = 4 << 20

// RemoteStore talks to an external DHT gateway node over HTTP:
//
//	GET  /v1/values/{cid}
//	PUT  /v1/values/{cid}
//	POST /v1/providers/{cid}
//
// The gateway offers no conditional writes, so this is a plain last-write-wins store.
type RemoteStore struct {
	Host   string
	Client *http.Client
}

var _ Store = (*RemoteStore)(nil)

// Transport errors, 5xx and 429 responses are retried with backoff; intermediate failures are logged at WARN.
func NewRemoteStore(host string, logger *slog.Logger) *RemoteStore {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(retryLogger{logger.With("system", "store-remote")})
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return &RemoteStore{
		Host:   strings.TrimSuffix(host, "/"),
		Client: client,
	}
}

// retryLogger re-writes client ERROR to WARN (because of retries), and DEBUG to INFO (where retries are logged).
type retryLogger struct {
	inner *slog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.Host+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	req.Header.Set("User-Agent", "timeline-store")
	return s.Client.Do(req)
}

func (s *RemoteStore) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/values/"+key.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gateway get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("gateway get: HTTP status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRemoteValueBytes))
}

func (s *RemoteStore) Put(ctx context.Context, key cid.Cid, val []byte) error {
	resp, err := s.do(ctx, http.MethodPut, "/v1/values/"+key.String(), val)
	if err != nil {
		return fmt.Errorf("gateway put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway put: HTTP status %d", resp.StatusCode)
	}
	return nil
}

func (s *RemoteStore) Provide(ctx context.Context, key cid.Cid) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/providers/"+key.String(), nil)
	if err != nil {
		return fmt.Errorf("gateway provide: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway provide: HTTP status %d", resp.StatusCode)
	}
	return nil
}
