package congress

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/civica-labs/legisync-cli/internal/connectors"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/logger"
	"github.com/civica-labs/legisync-cli/internal/ratelimit"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector fetches bills, votes, and members from the Congress.gov API.
type Connector struct {
	settings domain.CongressSettings
	client   *Client
	limiter  *ratelimit.Limiter
	policy   connectors.RetryPolicy
	mu       sync.Mutex
	closed   bool
}

// New creates a Congress.gov connector. The limiter is the source's shared
// budget; every worker fetching from this source must hold the same one.
func New(settings domain.CongressSettings, timeout time.Duration, limiter *ratelimit.Limiter) *Connector {
	return &Connector{
		settings: settings,
		client:   NewClient(settings, timeout),
		limiter:  limiter,
		policy:   connectors.DefaultRetryPolicy(),
	}
}

// Source returns the upstream identifier.
func (c *Connector) Source() domain.SourceID {
	return domain.SourceCongress
}

// Partitions enumerates one bill and one vote partition per configured
// congress number, plus a single partition for the member list.
func (c *Connector) Partitions(ctx context.Context) ([]domain.Partition, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}

	partitions := make([]domain.Partition, 0, 2*len(c.settings.Congresses)+1)
	for _, congress := range c.settings.Congresses {
		partitions = append(partitions, domain.Partition{
			Source:     domain.SourceCongress,
			EntityType: domain.EntityBill,
			Key:        strconv.Itoa(congress),
		})
	}
	for _, congress := range c.settings.Congresses {
		partitions = append(partitions, domain.Partition{
			Source:     domain.SourceCongress,
			EntityType: domain.EntityVote,
			Key:        strconv.Itoa(congress),
		})
	}
	partitions = append(partitions, domain.Partition{
		Source:     domain.SourceCongress,
		EntityType: domain.EntityMember,
	})
	return partitions, nil
}

// FetchPage executes one fetch task against the Congress.gov API.
func (c *Connector) FetchPage(ctx context.Context, task domain.FetchTask) (domain.Page, error) {
	if err := c.guard(ctx); err != nil {
		return domain.Page{}, err
	}
	if c.settings.APIKey == "" {
		return domain.Page{}, fmt.Errorf("%w: %v (set congress.api_key or LEGISYNC_CONGRESS_API_KEY)", domain.ErrInvalidRequest, connectors.ErrMissingAPIKey)
	}

	cursor, err := DecodeCursor(task.Cursor)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	rawURL, err := c.client.listURL(task, cursor)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	var envelope *listEnvelope
	op := fmt.Sprintf("congress %s page at offset %d", task.Partition, cursor.Offset)
	err = connectors.Do(ctx, c.limiter, c.policy, op, func(ctx context.Context) error {
		var attemptErr error
		envelope, attemptErr = c.client.list(ctx, rawURL)
		return attemptErr
	})
	if err != nil {
		return domain.Page{}, err
	}

	fetchedAt := time.Now().UTC()
	items := envelope.items(task.Partition.EntityType)
	page := domain.Page{Records: make([]domain.Record, 0, len(items))}
	for _, item := range items {
		stableID, ok := stableIDFor(task.Partition.EntityType, item)
		if !ok || !domain.ValidStableID(stableID) {
			page.Skipped++
			logger.Warn("congress %s: skipping item without usable identifier", task.Partition)
			continue
		}
		page.Records = append(page.Records, domain.Record{
			EntityType: task.Partition.EntityType,
			StableID:   stableID,
			Source:     domain.SourceCongress,
			Payload:    item,
			FetchedAt:  fetchedAt,
		})
	}

	if envelope.Pagination.Next != "" {
		next := &Cursor{Version: CursorVersion, Offset: cursor.Offset + c.client.pageSize}
		page.NextCursor = next.Encode()
	}
	return page, nil
}

// Validate checks the connector is configured and the API accepts the key.
func (c *Connector) Validate(ctx context.Context) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	if c.settings.APIKey == "" {
		return fmt.Errorf("%w: set congress.api_key or LEGISYNC_CONGRESS_API_KEY", connectors.ErrMissingAPIKey)
	}
	if len(c.settings.Congresses) == 0 {
		return fmt.Errorf("%w: no congress numbers configured", domain.ErrInvalidConfiguration)
	}

	err := c.client.probe(ctx, strconv.Itoa(c.settings.Congresses[0]))
	if err != nil {
		if connectors.IsUnauthorized(err) {
			return fmt.Errorf("congress: API key rejected: %w", err)
		}
		return fmt.Errorf("congress: validation request failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.http.CloseIdleConnections()
	return nil
}

// guard rejects operations on a closed connector or a cancelled context.
func (c *Connector) guard(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ErrConnectorClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// stableIDFor derives the stable identifier for one listed item.
func stableIDFor(entityType domain.EntityType, item map[string]any) (string, bool) {
	switch entityType {
	case domain.EntityBill:
		congress, ok := intField(item, "congress")
		if !ok {
			return "", false
		}
		billType, ok := strField(item, "type")
		if !ok {
			return "", false
		}
		number, ok := anyNumberField(item, "number")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%d_%s_%s", congress, strings.ToLower(billType), number), true

	case domain.EntityVote:
		congress, ok := intField(item, "congress")
		if !ok {
			return "", false
		}
		session, ok := intField(item, "sessionNumber")
		if !ok {
			return "", false
		}
		roll, ok := intField(item, "rollCallNumber")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%d_house_%d_%d", congress, session, roll), true

	case domain.EntityMember:
		return strField(item, "bioguideId")

	default:
		return "", false
	}
}

// intField reads a numeric field that the API serves as a JSON number or a
// numeric string.
func intField(item map[string]any, key string) (int, bool) {
	switch v := item[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// strField reads a non-empty string field.
func strField(item map[string]any, key string) (string, bool) {
	s, ok := item[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// anyNumberField reads a field served either as a number or a string,
// normalised to its string form. Bill numbers arrive both ways.
func anyNumberField(item map[string]any, key string) (string, bool) {
	switch v := item[key].(type) {
	case float64:
		return strconv.Itoa(int(v)), true
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	default:
		return "", false
	}
}
