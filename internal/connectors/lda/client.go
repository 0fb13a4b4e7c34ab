package lda

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/civica-labs/legisync-cli/internal/connectors"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// listEnvelope is the Django REST Framework page shape the LDA API serves.
type listEnvelope struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []map[string]any `json:"results"`
}

// Client performs requests against the LDA API.
type Client struct {
	http     *http.Client
	baseURL  string
	pageSize int
}

// NewClient creates an LDA API client. With a key the client authenticates
// via an Authorization: Token header; without one it runs anonymously.
func NewClient(settings domain.LDASettings, timeout time.Duration) *Client {
	var httpClient *http.Client
	if settings.APIKey != "" {
		source := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: settings.APIKey,
			TokenType:   "Token",
		})
		httpClient = oauth2.NewClient(context.Background(), source)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(settings.BaseURL, "/"),
		pageSize: settings.PageSize,
	}
}

// listURL builds the filings URL for one page of a filing year partition.
func (c *Client) listURL(task domain.FetchTask, cursor *Cursor) string {
	query := url.Values{}
	query.Set("filing_year", task.Partition.Key)
	query.Set("page", strconv.Itoa(cursor.Page))
	query.Set("page_size", strconv.Itoa(c.pageSize))
	query.Set("ordering", "dt_posted")
	if !task.UpdatedSince.IsZero() {
		query.Set("dt_posted_after", task.UpdatedSince.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return c.baseURL + "/filings/?" + query.Encode()
}

// list fetches one filings page.
func (c *Client) list(ctx context.Context, rawURL string) (*listEnvelope, error) {
	var envelope listEnvelope
	if err := connectors.GetJSON(ctx, c.http, rawURL, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// probe makes the cheapest possible request, used by Validate.
func (c *Client) probe(ctx context.Context, filingYear string) error {
	query := url.Values{}
	query.Set("filing_year", filingYear)
	query.Set("page_size", "1")
	var envelope listEnvelope
	return connectors.GetJSON(ctx, c.http, c.baseURL+"/filings/?"+query.Encode(), &envelope)
}
