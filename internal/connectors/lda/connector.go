package lda

import (
	"context"
	"fmt"
	"strconv"
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

// Connector fetches lobbying filings from the Senate LDA API.
type Connector struct {
	settings domain.LDASettings
	client   *Client
	limiter  *ratelimit.Limiter
	policy   connectors.RetryPolicy
	mu       sync.Mutex
	closed   bool
}

// New creates an LDA connector. The limiter is the source's shared budget.
func New(settings domain.LDASettings, timeout time.Duration, limiter *ratelimit.Limiter) *Connector {
	return &Connector{
		settings: settings,
		client:   NewClient(settings, timeout),
		limiter:  limiter,
		policy:   connectors.DefaultRetryPolicy(),
	}
}

// Source returns the upstream identifier.
func (c *Connector) Source() domain.SourceID {
	return domain.SourceLDA
}

// Partitions enumerates one filing partition per configured filing year.
func (c *Connector) Partitions(ctx context.Context) ([]domain.Partition, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}

	partitions := make([]domain.Partition, 0, len(c.settings.FilingYears))
	for _, year := range c.settings.FilingYears {
		partitions = append(partitions, domain.Partition{
			Source:     domain.SourceLDA,
			EntityType: domain.EntityFiling,
			Key:        strconv.Itoa(year),
		})
	}
	return partitions, nil
}

// FetchPage executes one fetch task against the LDA API.
func (c *Connector) FetchPage(ctx context.Context, task domain.FetchTask) (domain.Page, error) {
	if err := c.guard(ctx); err != nil {
		return domain.Page{}, err
	}

	cursor, err := DecodeCursor(task.Cursor)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	rawURL := c.client.listURL(task, cursor)

	var envelope *listEnvelope
	op := fmt.Sprintf("lda %s page %d", task.Partition, cursor.Page)
	err = connectors.Do(ctx, c.limiter, c.policy, op, func(ctx context.Context) error {
		var attemptErr error
		envelope, attemptErr = c.client.list(ctx, rawURL)
		return attemptErr
	})
	if err != nil {
		return domain.Page{}, err
	}

	fetchedAt := time.Now().UTC()
	page := domain.Page{Records: make([]domain.Record, 0, len(envelope.Results))}
	for _, item := range envelope.Results {
		filingUUID, ok := item["filing_uuid"].(string)
		if !ok || !domain.ValidStableID(filingUUID) {
			page.Skipped++
			logger.Warn("lda %s: skipping filing without usable filing_uuid", task.Partition)
			continue
		}
		page.Records = append(page.Records, domain.Record{
			EntityType: domain.EntityFiling,
			StableID:   filingUUID,
			Source:     domain.SourceLDA,
			Payload:    item,
			FetchedAt:  fetchedAt,
		})
	}

	if envelope.Next != nil && *envelope.Next != "" {
		next := &Cursor{Version: CursorVersion, Page: cursor.Page + 1}
		page.NextCursor = next.Encode()
	}
	return page, nil
}

// Validate checks the connector can reach the API with its configuration.
func (c *Connector) Validate(ctx context.Context) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	if len(c.settings.FilingYears) == 0 {
		return fmt.Errorf("%w: no filing years configured", domain.ErrInvalidConfiguration)
	}
	if c.settings.APIKey == "" {
		logger.Info("lda: no API key configured, running anonymously at the reduced rate")
	}

	err := c.client.probe(ctx, strconv.Itoa(c.settings.FilingYears[0]))
	if err != nil {
		if connectors.IsUnauthorized(err) {
			return fmt.Errorf("lda: API key rejected: %w", err)
		}
		return fmt.Errorf("lda: validation request failed: %w", err)
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
