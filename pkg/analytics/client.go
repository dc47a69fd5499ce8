// Package analytics provides the reporting-provider client. Every call is
// authenticated with a bearer token from the credential exchanger; a token
// the provider rejects is refreshed and the call retried once.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/marketlens/marketlens/pkg/auth"
	"github.com/marketlens/marketlens/pkg/logging"
)

// defaultBaseURL is the production reporting provider endpoint.
const defaultBaseURL = "https://analyticsdata.googleapis.com"

// Prometheus metrics for report requests.
var reportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketlens_report_requests_total",
	Help: "Total analytics report requests by outcome",
}, []string{"outcome"})

// DateRange bounds a report query. Dates use the provider's YYYY-MM-DD
// form; relative values like "28daysAgo" and "today" are also accepted.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// ReportRequest describes one report query.
type ReportRequest struct {
	Dimensions []string
	Metrics    []string
	DateRanges []DateRange
	Limit      int
}

// ReportRow is one row of a report: dimension values in request order
// followed by metric values in request order.
type ReportRow struct {
	DimensionValues []string `json:"dimensionValues"`
	MetricValues    []string `json:"metricValues"`
}

// Report is the decoded report response.
type Report struct {
	Rows     []ReportRow `json:"rows"`
	RowCount int         `json:"rowCount"`
}

// ClientConfig holds the reporting client configuration.
type ClientConfig struct {
	// PropertyID selects the reporting property queried by every call.
	PropertyID string

	// BaseURL overrides the provider endpoint (for testing).
	BaseURL string
}

// Client issues authenticated report queries against one property.
type Client struct {
	exchanger  *auth.Exchanger
	httpClient *http.Client
	propertyID string
	baseURL    string
	logger     zerolog.Logger
}

// NewClient creates a reporting client backed by the given exchanger.
func NewClient(cfg ClientConfig, exchanger *auth.Exchanger) (*Client, error) {
	if cfg.PropertyID == "" {
		return nil, fmt.Errorf("property id is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("credential exchanger is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		exchanger: exchanger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		propertyID: cfg.PropertyID,
		baseURL:    baseURL,
		logger:     logging.NewLogger("analytics-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// wire envelope of the provider's report endpoint.
type runReportRequest struct {
	Dimensions []nameField `json:"dimensions,omitempty"`
	Metrics    []nameField `json:"metrics,omitempty"`
	DateRanges []DateRange `json:"dateRanges,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

type nameField struct {
	Name string `json:"name"`
}

type runReportResponse struct {
	Rows []struct {
		DimensionValues []valueField `json:"dimensionValues"`
		MetricValues    []valueField `json:"metricValues"`
	} `json:"rows"`
	RowCount int `json:"rowCount"`
}

type valueField struct {
	Value string `json:"value"`
}

// RunReport runs one report query. A token the provider rejects with 401
// is refreshed once and the request retried before the failure surfaces.
func (c *Client) RunReport(ctx context.Context, req ReportRequest) (*Report, error) {
	payload := runReportRequest{
		DateRanges: req.DateRanges,
		Limit:      req.Limit,
	}
	for _, d := range req.Dimensions {
		payload.Dimensions = append(payload.Dimensions, nameField{Name: d})
	}
	for _, m := range req.Metrics {
		payload.Metrics = append(payload.Metrics, nameField{Name: m})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal report request: %w", err)
	}

	var report *Report
	err = auth.Do(ctx, c.exchanger, func(token string) error {
		var callErr error
		report, callErr = c.runReport(ctx, token, body)
		return callErr
	})
	if err != nil {
		reportRequestsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	reportRequestsTotal.WithLabelValues("success").Inc()
	return report, nil
}

func (c *Client) runReport(ctx context.Context, token string, body []byte) (*Report, error) {
	url := fmt.Sprintf("%s/v1beta/properties/%s:runReport", c.baseURL, c.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, auth.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("report endpoint returned %d: %s", resp.StatusCode, detail)
	}

	var decoded runReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode report response: %w", err)
	}

	report := &Report{RowCount: decoded.RowCount}
	for _, row := range decoded.Rows {
		r := ReportRow{}
		for _, v := range row.DimensionValues {
			r.DimensionValues = append(r.DimensionValues, v.Value)
		}
		for _, v := range row.MetricValues {
			r.MetricValues = append(r.MetricValues, v.Value)
		}
		report.Rows = append(report.Rows, r)
	}

	c.logger.Debug().
		Int("rows", len(report.Rows)).
		Dur("duration", time.Since(start)).
		Msg("Report query completed")

	return report, nil
}

// defaultOverviewDays is the reporting window when the caller passes none.
const defaultOverviewDays = 28

// OverviewPoint is one day of the dashboard traffic summary.
type OverviewPoint struct {
	Date               string `json:"date"`
	ActiveUsers        string `json:"activeUsers"`
	PageViews          string `json:"pageViews"`
	AvgSessionDuration string `json:"avgSessionDuration"`
	BounceRate         string `json:"bounceRate"`
}

// FetchOverview runs the per-day traffic summary report over the last
// days days. A non-positive value falls back to defaultOverviewDays.
func (c *Client) FetchOverview(ctx context.Context, days int) ([]OverviewPoint, error) {
	if days <= 0 {
		days = defaultOverviewDays
	}

	report, err := c.RunReport(ctx, ReportRequest{
		Dimensions: []string{"date"},
		Metrics:    []string{"activeUsers", "screenPageViews", "averageSessionDuration", "bounceRate"},
		DateRanges: []DateRange{{StartDate: fmt.Sprintf("%ddaysAgo", days), EndDate: "today"}},
	})
	if err != nil {
		return nil, err
	}

	points := make([]OverviewPoint, 0, len(report.Rows))
	for _, row := range report.Rows {
		point := OverviewPoint{}
		if len(row.DimensionValues) > 0 {
			point.Date = row.DimensionValues[0]
		}
		values := row.MetricValues
		if len(values) > 0 {
			point.ActiveUsers = values[0]
		}
		if len(values) > 1 {
			point.PageViews = values[1]
		}
		if len(values) > 2 {
			point.AvgSessionDuration = values[2]
		}
		if len(values) > 3 {
			point.BounceRate = values[3]
		}
		points = append(points, point)
	}

	return points, nil
}
