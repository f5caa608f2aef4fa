package extract

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/no0bitah/covid-etl/config"
)

// DateLayout is the single date format the source feed publishes.
const DateLayout = "2006-01-02"

var (
	// ErrSourceUnavailable marks network or HTTP failures against the feed.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload marks a response body with an unexpected shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// RawRecord is one row as received from the feed, untyped. The
// cumulative fields are empty strings when the feed omits those columns.
type RawRecord struct {
	Country          string
	Date             string
	Cases            string
	Deaths           string
	CumulativeCases  string
	CumulativeDeaths string
}

// Window bounds one pipeline run, as supplied by the orchestrator
// trigger. A zero Start or End leaves that side unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

type SourceClient struct {
	HTTPClient *retryablehttp.Client
	Logger     *slog.Logger
	sourceURL  string
}

func NewSourceClient(config *config.Config, logger *slog.Logger) (*SourceClient, error) {
	if config.Source.URL == "" {
		return nil, fmt.Errorf("source.url is not configured")
	}

	client := &SourceClient{
		HTTPClient: retryablehttp.NewClient(),
		Logger:     logger,
		sourceURL:  config.Source.URL,
	}

	client.HTTPClient.RetryWaitMin = config.Extract.Backoff.RetryWaitMin
	client.HTTPClient.RetryWaitMax = config.Extract.Backoff.RetryWaitMax
	client.HTTPClient.RetryMax = config.Extract.Backoff.RetryMax
	client.HTTPClient.Logger = logger

	return client, nil
}

// FetchWindow issues the single GET of a pipeline run and returns the
// raw rows. Transport failures and non-200 statuses wrap
// ErrSourceUnavailable; an unparseable body wraps ErrMalformedPayload.
// Row order is whatever the feed returns.
func (c *SourceClient) FetchWindow(window Window) ([]RawRecord, error) {
	url, err := c.windowURL(window)
	if err != nil {
		return nil, err
	}

	body, resp, err := c.get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s, body: %s", ErrSourceUnavailable, resp.Status, string(body))
	}

	records, err := ParseCSV(body)
	if err != nil {
		return nil, err
	}

	c.Logger.Info(fmt.Sprintf("Fetched %d raw records from source feed", len(records)))
	return records, nil
}

// windowURL adds the start/end query parameters to the configured feed URL
func (c *SourceClient) windowURL(window Window) (string, error) {
	parsedURL, err := url.Parse(c.sourceURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse source URL: %w", err)
	}

	query := parsedURL.Query()
	if !window.Start.IsZero() {
		query.Set("start", window.Start.Format(DateLayout))
	}
	if !window.End.IsZero() {
		query.Set("end", window.End.Format(DateLayout))
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// get fetches the URL and returns the body and response
func (c *SourceClient) get(url string) (body []byte, resp *http.Response, err error) {
	resp, err = c.HTTPClient.Get(url)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return body, resp, nil
}
