// Package sources fetches telemetry from the dashboard's data API and from a
// live NATS feed, and pages analysts through the dataset's time range.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

// Client talks to the data API:
//
//	GET {base}/api/{kind}?start=...&end=...   JSON array of records
//	GET {base}/api/categories                 JSON object category -> addresses
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Decoder telemetry.Decoder
	Log     *zap.SugaredLogger
}

func NewClient(baseURL string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Log:     log,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: bad status: %s", path, resp.Status)
	}
	return resp, nil
}

// FetchRecords returns the records of a kind with timestamps in [start, end].
// Timestamps are sent as local ISO-8601 without a zone, the way the API
// stores them. The API does not promise any order.
func (c *Client) FetchRecords(ctx context.Context, kind telemetry.Kind, start, end time.Time) ([]telemetry.Record, []telemetry.Issue, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("fetch records: unsupported kind %q", kind)
	}
	q := url.Values{}
	q.Set("start", start.Format(telemetry.ISOLocal))
	q.Set("end", end.Format(telemetry.ISOLocal))

	began := time.Now()
	resp, err := c.get(ctx, "/api/"+string(kind), q)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	records, issues, err := c.Decoder.Decode(kind, resp.Body)
	if err != nil {
		return nil, nil, err
	}
	c.Log.Infof("Fetched %d %s records for %s - %s in %v", len(records), kind,
		start.Format(telemetry.ISOLocal), end.Format(telemetry.ISOLocal), time.Since(began).Round(time.Millisecond))
	for _, is := range issues {
		c.Log.Warnf("Dropped %s record: %s", kind, is)
	}
	return records, issues, nil
}

// FetchAddressCategories returns the category -> addresses mapping.
func (c *Client) FetchAddressCategories(ctx context.Context) (map[string][]string, error) {
	resp, err := c.get(ctx, "/api/categories", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return out, nil
}
