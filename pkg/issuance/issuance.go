// Package issuance commits a batch of records: it builds the tree, pins the
// record and proof artifacts to content storage and anchors the descriptor on
// the ledger.
package issuance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/batch"
	"github.com/Layr-Labs/forj-go/pkg/forj"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// Config holds the issuer settings
type Config struct {
	// ContentBaseURL is prefixed to content ids to form artifact URIs
	ContentBaseURL string

	Scheme      merkle.HashScheme
	Parallelism int
}

// IssueRequest is one batch to commit.
type IssueRequest struct {
	Issuer    string
	UniqueKey uint64
	EventName string
	EventID   uint64

	Records []types.Record

	// Template is the optional certificate template file
	Template []byte
}

// IssueResult describes a committed and anchored batch.
type IssueResult struct {
	Event      *persistence.EventRecord
	Descriptor *batch.Descriptor
	Proofs     []*merkle.MerkleProof

	RecordsCID  string
	ProofsCID   string
	TemplateCID string
}

// Issuer runs the issuance pipeline.
type Issuer struct {
	content persistence.IContentStore
	ledger  *ledger.Ledger
	config  Config
	logger  *zap.Logger
}

// NewIssuer returns an issuer pinning to content and anchoring on l.
func NewIssuer(content persistence.IContentStore, l *ledger.Ledger, cfg Config, logger *zap.Logger) *Issuer {
	if cfg.Scheme == nil {
		cfg.Scheme = merkle.LegacyScheme
	}
	return &Issuer{
		content: content,
		ledger:  l,
		config:  cfg,
		logger:  logger,
	}
}

func (i *Issuer) uri(cid string) string {
	if cid == "" {
		return ""
	}
	return i.config.ContentBaseURL + cid
}

// Issue commits req.Records in order. Record i is proven by proof i.
func (i *Issuer) Issue(ctx context.Context, req *IssueRequest) (*IssueResult, error) {
	if req == nil {
		return nil, fmt.Errorf("issue request cannot be nil")
	}

	// Fail before pinning anything when the key is taken
	if _, err := i.ledger.GetEvent(ctx, req.Issuer, req.UniqueKey); err == nil {
		return nil, fmt.Errorf("%w: issuer %s key %d", ledger.ErrEventExists, req.Issuer, req.UniqueKey)
	} else if !errors.Is(err, ledger.ErrEventNotFound) {
		return nil, err
	}

	leaves := make([]types.Hash, len(req.Records))
	for idx, record := range req.Records {
		leaves[idx] = i.config.Scheme.HashLeaf(forj.Canonicalize(record))
	}

	tree, err := forj.BuildTree(leaves,
		merkle.WithScheme(i.config.Scheme),
		merkle.WithParallelism(i.config.Parallelism),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	proofs, err := tree.GenerateAllProofs()
	if err != nil {
		return nil, fmt.Errorf("failed to generate proofs: %w", err)
	}

	recordsData, err := artifacts.EncodeRecords(req.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	proofsData, err := artifacts.EncodeProofs(proofs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proofs: %w", err)
	}

	result := &IssueResult{Proofs: proofs}
	if result.RecordsCID, err = i.content.PutContent(ctx, recordsData); err != nil {
		return nil, fmt.Errorf("failed to pin records: %w", err)
	}
	if result.ProofsCID, err = i.content.PutContent(ctx, proofsData); err != nil {
		return nil, fmt.Errorf("failed to pin proofs: %w", err)
	}
	if len(req.Template) > 0 {
		if result.TemplateCID, err = i.content.PutContent(ctx, req.Template); err != nil {
			return nil, fmt.Errorf("failed to pin template: %w", err)
		}
	}

	result.Descriptor, err = batch.NewDescriptor(tree)
	if err != nil {
		return nil, err
	}

	result.Event, err = i.ledger.InitEvent(ctx, &ledger.InitEventParams{
		Issuer:         req.Issuer,
		UniqueKey:      req.UniqueKey,
		EventName:      req.EventName,
		EventID:        req.EventID,
		Descriptor:     result.Descriptor,
		HashScheme:     merkle.SchemeName(i.config.Scheme),
		MetadataURI:    i.uri(result.RecordsCID),
		TemplateURI:    i.uri(result.TemplateCID),
		MerkleProofURI: i.uri(result.ProofsCID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to anchor batch: %w", err)
	}

	i.logger.Sugar().Infow("Batch issued",
		"issuer", result.Event.Issuer,
		"unique_key", req.UniqueKey,
		"records", len(req.Records),
		"root", result.Descriptor.Root.String(),
		"records_cid", result.RecordsCID,
		"proofs_cid", result.ProofsCID,
	)
	return result, nil
}

// UploadResponse renders the result the way the upload endpoint returns it.
func (r *IssueResult) UploadResponse() *types.UploadResponse {
	return &types.UploadResponse{
		Issuer:         r.Event.Issuer,
		UniqueKey:      r.Event.UniqueKey,
		EventName:      r.Event.EventName,
		EventID:        r.Event.EventID,
		BatchSize:      r.Event.BatchSize,
		BitMap:         r.Event.BitMap,
		MerkleRoot:     r.Event.MerkleRoot,
		MetadataURI:    r.Event.MetadataURI,
		TemplateURI:    r.Event.TemplateURI,
		MerkleProofURI: r.Event.MerkleProofURI,
	}
}
