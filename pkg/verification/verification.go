// Package verification answers whether a holder's credential belongs to an
// anchored batch, and looks up the credential for claiming.
package verification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

var (
	// ErrProofUnavailable means verification could not be attempted because
	// the ledger entry or one of its artifacts is missing or unreadable. It is
	// not a failed verification.
	ErrProofUnavailable = errors.New("proof unavailable")

	// ErrIncompleteRecord means the located record lacks the fields a
	// certificate is rendered from.
	ErrIncompleteRecord = errors.New("credential record is incomplete")
)

// Config holds the verifier settings
type Config struct {
	// IdentityField is the record field holders are looked up by
	IdentityField string

	// VerifyBaseURL prefixes the public verification link of a credential
	VerifyBaseURL string
}

// Result is the outcome of one verification.
type Result struct {
	Verified bool
	CertID   int
	Root     types.Hash
	Leaf     types.Hash
	Proof    []types.Hash
	Record   types.Record
}

// Credential is a located record with the event it was issued under.
type Credential struct {
	CertID    int
	Record    types.Record
	Event     *persistence.EventRecord
	VerifyURL string
}

// Verifier reads anchored events and their artifacts.
type Verifier struct {
	ledger  *ledger.Ledger
	content persistence.IContentStore
	config  Config
	logger  *zap.Logger
}

// NewVerifier returns a verifier over the ledger and content store.
func NewVerifier(l *ledger.Ledger, content persistence.IContentStore, cfg Config, logger *zap.Logger) *Verifier {
	if cfg.IdentityField == "" {
		cfg.IdentityField = types.FieldEmail
	}
	return &Verifier{
		ledger:  l,
		content: content,
		config:  cfg,
		logger:  logger,
	}
}

// contentIDFromURI takes the content id from the last path segment of an
// artifact URI.
func contentIDFromURI(uri string) (string, error) {
	cid := uri[strings.LastIndex(uri, "/")+1:]
	if !persistence.ValidContentID(cid) {
		return "", fmt.Errorf("%w: no content id in %q", ErrProofUnavailable, uri)
	}
	return cid, nil
}

func (v *Verifier) fetch(ctx context.Context, uri string) ([]byte, error) {
	cid, err := contentIDFromURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := v.content.GetContent(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofUnavailable, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: content %s not found", ErrProofUnavailable, cid)
	}
	return data, nil
}

func (v *Verifier) loadEvent(ctx context.Context, issuer string, uniqueKey uint64) (*persistence.EventRecord, error) {
	event, err := v.ledger.GetEvent(ctx, issuer, uniqueKey)
	if errors.Is(err, ledger.ErrEventNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrProofUnavailable, err)
	}
	return event, err
}

func (v *Verifier) loadRecords(ctx context.Context, event *persistence.EventRecord) ([]types.Record, error) {
	data, err := v.fetch(ctx, event.MetadataURI)
	if err != nil {
		return nil, err
	}
	records, err := artifacts.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofUnavailable, err)
	}
	return records, nil
}

// VerifyCredential checks the record issued to identity under the event
// against the anchored root. A record that does not fold to the root is
// reported as Verified=false.
func (v *Verifier) VerifyCredential(ctx context.Context, issuer string, uniqueKey uint64, identity string) (*Result, error) {
	event, err := v.loadEvent(ctx, issuer, uniqueKey)
	if err != nil {
		return nil, err
	}
	scheme, err := merkle.SchemeByName(event.HashScheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofUnavailable, err)
	}

	records, err := v.loadRecords(ctx, event)
	if err != nil {
		return nil, err
	}
	proofData, err := v.fetch(ctx, event.MerkleProofURI)
	if err != nil {
		return nil, err
	}
	proofs, err := artifacts.DecodeProofs(proofData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofUnavailable, err)
	}

	index, err := artifacts.LocateRecord(records, v.config.IdentityField, identity)
	if err != nil {
		return nil, err
	}

	opt := merkle.WithScheme(scheme)
	result := &Result{
		CertID: index,
		Root:   event.MerkleRoot,
		Leaf:   merkle.LeafFromRecord(records[index], opt),
		Record: records[index],
	}
	if index >= len(proofs) {
		v.logger.Sugar().Warnw("Proof list shorter than record list",
			"issuer", issuer, "unique_key", uniqueKey, "records", len(records), "proofs", len(proofs))
		return result, nil
	}

	result.Proof = proofs[index]
	result.Verified = merkle.VerifyProof(result.Leaf, result.Proof, event.MerkleRoot, opt)

	v.logger.Sugar().Debugw("Credential verified",
		"issuer", issuer,
		"unique_key", uniqueKey,
		"cert_id", index,
		"verified", result.Verified,
	)
	return result, nil
}

// LookupCredential finds the record issued to identity under the event.
func (v *Verifier) LookupCredential(ctx context.Context, issuer string, uniqueKey uint64, identity string) (*Credential, error) {
	event, err := v.ledger.GetEvent(ctx, issuer, uniqueKey)
	if err != nil {
		return nil, err
	}
	records, err := v.loadRecords(ctx, event)
	if err != nil {
		return nil, err
	}
	index, err := artifacts.LocateRecord(records, v.config.IdentityField, identity)
	if err != nil {
		return nil, err
	}

	record := records[index]
	name, _ := record.Get(types.FieldName)
	enroll, _ := record.Get(types.FieldEnroll)
	if name == "" || enroll == "" {
		return nil, fmt.Errorf("%w: record %d", ErrIncompleteRecord, index)
	}

	return &Credential{
		CertID:    index,
		Record:    record,
		Event:     event,
		VerifyURL: v.verifyURL(issuer, uniqueKey, identity),
	}, nil
}

// verifyURL builds <base><issuer>/<uniqueKey>/<identity>.
func (v *Verifier) verifyURL(issuer string, uniqueKey uint64, identity string) string {
	return v.config.VerifyBaseURL + url.PathEscape(issuer) + "/" +
		strconv.FormatUint(uniqueKey, 10) + "/" + url.PathEscape(identity)
}

// ClaimResponse renders a credential the way the claim endpoint returns it.
func (c *Credential) ClaimResponse() *types.ClaimResponse {
	name, _ := c.Record.Get(types.FieldName)
	return &types.ClaimResponse{
		Name:        name,
		Enroll:      c.Record[types.FieldEnroll],
		Email:       c.Record[types.FieldEmail],
		Position:    c.Record[types.FieldPosition],
		EventName:   c.Event.EventName,
		TemplateURI: c.Event.TemplateURI,
		VerifyURL:   c.VerifyURL,
		CertID:      c.CertID,
	}
}
