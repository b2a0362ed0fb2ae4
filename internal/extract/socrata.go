// Package extract pulls raw recall and complaint records from the
// DOT/NHTSA Socrata datasets. It fetches and paginates only; cleaning,
// dedup and modeling happen downstream.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default Socrata endpoints and paging.
const (
	DefaultBaseURL           = "https://data.transportation.gov/resource"
	DefaultRecallsDataset    = "86zz-ue7u"
	DefaultComplaintsDataset = "htum-kus7"
	DefaultPageSize          = 1000
)

// Options configures the Socrata client.
type Options struct {
	BaseURL           string
	RecallsDataset    string
	ComplaintsDataset string
	UserAgent         string
	PageSize          int
	Timeout           time.Duration
	MaxRetries        int
	RatePerSec        float64
}

// Window restricts an extraction to one make and a date range. Start and
// End are ISO dates and may be empty.
type Window struct {
	Make  string
	Start string
	End   string
}

// Client fetches Socrata datasets with pagination, rate limiting and
// bounded retries.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a Socrata client with the given options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RecallsDataset == "" {
		opts.RecallsDataset = DefaultRecallsDataset
	}
	if opts.ComplaintsDataset == "" {
		opts.ComplaintsDataset = DefaultComplaintsDataset
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "recallwatch/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	return &Client{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// Recalls extracts raw recall records for the window.
func (c *Client) Recalls(ctx context.Context, w Window) ([]map[string]any, error) {
	where := whereClause(w.Make, "report_received_date", w.Start, w.End)
	return c.fetchDataset(ctx, c.opts.RecallsDataset, where)
}

// Complaints extracts raw complaint records for the window.
func (c *Client) Complaints(ctx context.Context, w Window) ([]map[string]any, error) {
	where := whereClause(w.Make, "date_received", w.Start, w.End)
	return c.fetchDataset(ctx, c.opts.ComplaintsDataset, where)
}

// whereClause builds the SoQL filter for one make and a date window.
func whereClause(mk, dateField, start, end string) string {
	filters := []string{fmt.Sprintf("upper(make) = '%s'", strings.ToUpper(mk))}
	if start != "" {
		filters = append(filters, fmt.Sprintf("%s >= '%s'", dateField, start))
	}
	if end != "" {
		filters = append(filters, fmt.Sprintf("%s <= '%s'", dateField, end))
	}
	return strings.Join(filters, " AND ")
}

// fetchDataset pages through a dataset until an empty page terminates the
// scan, returning the raw records as decoded JSON objects.
func (c *Client) fetchDataset(ctx context.Context, datasetID, where string) ([]map[string]any, error) {
	log := zap.L().With(zap.String("component", "extract"), zap.String("dataset", datasetID))

	var records []map[string]any
	offset := 0
	for {
		page, err := c.fetchPage(ctx, datasetID, where, offset)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: dataset %s offset %d", datasetID, offset)
		}
		if len(page) == 0 {
			break
		}
		records = append(records, page...)
		offset += c.opts.PageSize
		log.Debug("fetched page", zap.Int("offset", offset), zap.Int("total", len(records)))
	}

	log.Info("extraction complete", zap.Int("records", len(records)))
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, datasetID, where string, offset int) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("$limit", strconv.Itoa(c.opts.PageSize))
	params.Set("$offset", strconv.Itoa(offset))
	if where != "" {
		params.Set("$where", where)
	}
	pageURL := fmt.Sprintf("%s/%s.json?%s", c.opts.BaseURL, datasetID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var page []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "decode page")
	}
	return page, nil
}

// doWithRetry waits on the rate limiter and retries 429/5xx responses with
// exponential backoff and jitter.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := c.client.Do(cloned)
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			zap.L().Warn("retryable status, backing off",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.String())
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
