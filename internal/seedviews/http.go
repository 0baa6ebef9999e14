package seedviews

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yorunavi/engine/pkg/logger"
)

// HTTP status codes the submitter distinguishes.
const (
	statusOK              = 200
	statusAccepted        = 202
	statusTooManyRequests = 429
)

// httpClient wraps http.Client with a per-request timeout.
type httpClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	return &httpClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.client.Do(req)
}

func (c *httpClient) post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readBody reads and closes the response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitViews pushes views through a worker pool and tallies outcomes.
func submitViews(ctx context.Context, config *Config, views []viewRequest, stats *Stats) error {
	logger.Get().Info(ctx, "submitting views",
		logger.Int("count", len(views)),
		logger.Int("workers", config.Workers),
	)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/views"

	var (
		accepted  int64
		rejected  int64
		failed    int64
		submitted int64
	)

	viewChan := make(chan viewRequest, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for view := range viewChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddInt64(&submitted, 1)
				switch submitSingleView(ctx, client, url, view) {
				case statusAccepted:
					atomic.AddInt64(&accepted, 1)
				case statusTooManyRequests:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	go func() {
		defer close(viewChan)
		for _, view := range views {
			select {
			case <-ctx.Done():
				return
			case viewChan <- view:
			}
		}
	}()

	wg.Wait()

	stats.ViewsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ViewsAccepted = int(atomic.LoadInt64(&accepted))
	stats.ViewsRejected = int(atomic.LoadInt64(&rejected))
	stats.ViewsFailed = int(atomic.LoadInt64(&failed))

	logger.Get().Info(ctx, "view submission completed",
		logger.Int("accepted", stats.ViewsAccepted),
		logger.Int("rejected", stats.ViewsRejected),
		logger.Int("failed", stats.ViewsFailed),
	)
	return nil
}

// submitSingleView posts one view and returns the response status code.
func submitSingleView(ctx context.Context, client *httpClient, url string, view viewRequest) int {
	resp, err := client.post(ctx, url, view)
	if err != nil {
		return 0
	}
	_, _ = readBody(resp)
	return resp.StatusCode
}
