package congress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/civica-labs/legisync-cli/internal/connectors"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// apiKeyHeader carries the credential on every request.
const apiKeyHeader = "X-Api-Key"

// listEnvelope is the common shape of Congress.gov listing responses. Only
// one of the entity arrays is populated per endpoint.
type listEnvelope struct {
	Bills      []map[string]any `json:"bills"`
	Votes      []map[string]any `json:"houseRollCallVotes"`
	Members    []map[string]any `json:"members"`
	Pagination struct {
		Count int    `json:"count"`
		Next  string `json:"next"`
	} `json:"pagination"`
}

// items returns whichever entity array the endpoint populated.
func (e *listEnvelope) items(entityType domain.EntityType) []map[string]any {
	switch entityType {
	case domain.EntityBill:
		return e.Bills
	case domain.EntityVote:
		return e.Votes
	case domain.EntityMember:
		return e.Members
	default:
		return nil
	}
}

// apiKeyTransport injects the X-Api-Key header into every request.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(clone)
}

// Client performs authenticated requests against the Congress.gov API.
type Client struct {
	http     *http.Client
	baseURL  string
	pageSize int
}

// NewClient creates a Congress.gov API client.
func NewClient(settings domain.CongressSettings, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &apiKeyTransport{
				key:  settings.APIKey,
				base: http.DefaultTransport,
			},
		},
		baseURL:  strings.TrimRight(settings.BaseURL, "/"),
		pageSize: settings.PageSize,
	}
}

// listURL builds the listing URL for one page of a partition.
func (c *Client) listURL(task domain.FetchTask, cursor *Cursor) (string, error) {
	var path string
	switch task.Partition.EntityType {
	case domain.EntityBill:
		path = "/bill/" + task.Partition.Key
	case domain.EntityVote:
		path = "/house-vote/" + task.Partition.Key
	case domain.EntityMember:
		path = "/member"
	default:
		return "", fmt.Errorf("congress: no endpoint for entity type %q", task.Partition.EntityType)
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("offset", strconv.Itoa(cursor.Offset))
	if !task.UpdatedSince.IsZero() && supportsUpdateFilter(task.Partition.EntityType) {
		query.Set("fromDateTime", task.UpdatedSince.UTC().Format("2006-01-02T15:04:05Z"))
	}

	return c.baseURL + path + "?" + query.Encode(), nil
}

// supportsUpdateFilter reports whether the listing accepts fromDateTime.
// House vote listings do not.
func supportsUpdateFilter(entityType domain.EntityType) bool {
	return entityType == domain.EntityBill || entityType == domain.EntityMember
}

// list fetches one listing page.
func (c *Client) list(ctx context.Context, rawURL string) (*listEnvelope, error) {
	var envelope listEnvelope
	if err := connectors.GetJSON(ctx, c.http, rawURL, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// probe makes the cheapest possible authenticated request, used by
// Validate.
func (c *Client) probe(ctx context.Context, congress string) error {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", "1")
	var envelope listEnvelope
	return connectors.GetJSON(ctx, c.http, c.baseURL+"/bill/"+congress+"?"+query.Encode(), &envelope)
}
