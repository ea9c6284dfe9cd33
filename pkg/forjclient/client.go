// Package forjclient talks to a forj server and can audit an anchored batch
// locally, trusting nothing but the root the ledger reports.
package forjclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/transport"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// ErrNotFound is returned when the server has no such event, record or content
var ErrNotFound = errors.New("not found")

// ClientConfig holds the configuration for the forj client
type ClientConfig struct {
	BaseURL   string
	Logger    *zap.Logger
	Transport *transport.Client
}

// Client provides a reusable library interface for forj operations
type Client struct {
	baseURL   string
	transport *transport.Client
	logger    *zap.Logger
}

// NewClient creates a new forj client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	tc := config.Transport
	if tc == nil {
		tc = transport.NewClient(nil, transport.DefaultRetryConfig, config.Logger)
	}

	return &Client{
		baseURL:   strings.TrimSuffix(config.BaseURL, "/"),
		transport: tc,
		logger:    config.Logger,
	}, nil
}

func mapError(err error) error {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, statusErr.Body)
	}
	return err
}

// Verify asks the server to verify a credential
func (c *Client) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	var resp types.VerifyResponse
	if err := c.transport.PostJSON(ctx, c.baseURL+"/api/verify", req, &resp); err != nil {
		return nil, mapError(err)
	}
	return &resp, nil
}

// Claim looks up and claims a credential
func (c *Client) Claim(ctx context.Context, req *types.ClaimRequest) (*types.ClaimResponse, error) {
	var resp types.ClaimResponse
	if err := c.transport.PostJSON(ctx, c.baseURL+"/api/claim", req, &resp); err != nil {
		return nil, mapError(err)
	}
	return &resp, nil
}

// ListEvents returns the events anchored by issuer
func (c *Client) ListEvents(ctx context.Context, issuer string) ([]*persistence.EventRecord, error) {
	body, err := c.transport.Get(ctx, c.baseURL+"/api/events?issuer="+url.QueryEscape(issuer))
	if err != nil {
		return nil, mapError(err)
	}
	var events []*persistence.EventRecord
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// GetEvent returns one event of issuer
func (c *Client) GetEvent(ctx context.Context, issuer string, uniqueKey uint64) (*persistence.EventRecord, error) {
	events, err := c.ListEvents(ctx, issuer)
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		if event.UniqueKey == uniqueKey {
			return event, nil
		}
	}
	return nil, fmt.Errorf("%w: event %d of %s", ErrNotFound, uniqueKey, issuer)
}

// FetchArtifact downloads an artifact URI. When the last path segment is a
// content id the body must hash to it.
func (c *Client) FetchArtifact(ctx context.Context, uri string) ([]byte, error) {
	data, err := c.transport.Get(ctx, uri)
	if err != nil {
		return nil, mapError(err)
	}
	cid := uri[strings.LastIndex(uri, "/")+1:]
	if persistence.ValidContentID(cid) && persistence.ContentID(data) != cid {
		return nil, fmt.Errorf("content from %s does not match its id", uri)
	}
	return data, nil
}

// AuditReport is the result of re-verifying every record of a batch.
type AuditReport struct {
	Event    *persistence.EventRecord
	Records  int
	Verified int
	// Failed lists the indices of records that do not fold to the root
	Failed []int
}

// OK reports whether every record verified
func (r *AuditReport) OK() bool {
	return len(r.Failed) == 0 && r.Verified == r.Records && r.Records == int(r.Event.BatchSize)
}

// Audit downloads an event's artifacts and verifies every record against
// the anchored root locally.
func (c *Client) Audit(ctx context.Context, issuer string, uniqueKey uint64) (*AuditReport, error) {
	event, err := c.GetEvent(ctx, issuer, uniqueKey)
	if err != nil {
		return nil, err
	}
	scheme, err := merkle.SchemeByName(event.HashScheme)
	if err != nil {
		return nil, err
	}

	recordData, err := c.FetchArtifact(ctx, event.MetadataURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	records, err := artifacts.DecodeRecords(recordData)
	if err != nil {
		return nil, err
	}
	proofData, err := c.FetchArtifact(ctx, event.MerkleProofURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proofs: %w", err)
	}
	proofs, err := artifacts.DecodeProofs(proofData)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Event: event, Records: len(records)}
	opt := merkle.WithScheme(scheme)
	for i, record := range records {
		if i < len(proofs) && merkle.Verify(record, proofs[i], event.MerkleRoot, opt) {
			report.Verified++
			continue
		}
		report.Failed = append(report.Failed, i)
	}

	c.logger.Sugar().Infow("Audit complete",
		"issuer", issuer,
		"unique_key", uniqueKey,
		"records", report.Records,
		"verified", report.Verified,
		"failed", len(report.Failed),
	)
	return report, nil
}
