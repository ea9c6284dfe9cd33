package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/forj-go/pkg/issuance"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/verification"
)

/*
Server exposes issuance, claiming and verification over HTTP.

Issuance:
  POST /api/upload (multipart):
    - Fields: issuer, eventName, eventId, uniqueKey (defaults to eventId)
    - Files: csv (name,enroll,email[,position] rows) or records (JSON array),
      optional template
    - Builds the tree, pins records/proofs/template, anchors the descriptor
    - Response: UploadResponse with root, bitmap and artifact URIs

Holder flow:
  POST /api/claim:
    - Request: { pubkey, uniqueKey, userEmail }
    - Locates the record by email and marks it claimed on the ledger
    - Response: ClaimResponse with the fields a certificate is rendered from
    - 409 when the record was already claimed

  POST /api/verify:
    - Request: { issuer, uniqueKey, email }
    - Folds the stored proof for the record and compares with the anchored root
    - Response: { verified, root, leaf, certId, proof }
    - verified=false is a normal answer; 404 means no credential was issued,
      503 means the artifacts could not be read

Reads:
  GET /api/events?issuer=<address>  - events of an issuer
  GET /content/<cid>                - pinned artifacts
  GET /ping                         - liveness
*/

// Config holds the HTTP settings
type Config struct {
	Port int

	// RateLimit is the accepted requests per second, 0 disables limiting
	RateLimit float64

	MaxUploadSize int64
}

// Server handles HTTP requests for the forj API
type Server struct {
	issuer     *issuance.Issuer
	verifier   *verification.Verifier
	ledger     *ledger.Ledger
	content    persistence.IContentStore
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxUpload  int64
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(
	cfg Config,
	issuer *issuance.Issuer,
	verifier *verification.Verifier,
	l *ledger.Ledger,
	content persistence.IContentStore,
	logger *zap.Logger,
) *Server {
	s := &Server{
		issuer:    issuer,
		verifier:  verifier,
		ledger:    l,
		content:   content,
		logger:    logger,
		maxUpload: cfg.MaxUploadSize,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(math.Ceil(cfg.RateLimit)))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ping", s.handlePing)

	// Issuance
	mux.HandleFunc("/api/upload", s.handleUpload)

	// Holder endpoints
	mux.HandleFunc("/api/claim", s.handleClaim)
	mux.HandleFunc("/api/verify", s.handleVerify)

	// Reads
	mux.HandleFunc("/api/events", s.handleListEvents)
	mux.HandleFunc("/content/", s.handleContent)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.middlewareRequestID(s.middlewareLogging(s.middlewareRateLimit(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
