package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/ingest"
	"github.com/Layr-Labs/forj-go/pkg/issuance"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
	"github.com/Layr-Labs/forj-go/pkg/verification"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors to HTTP status codes. Not-found is checked
// before unavailable since a missing event is reported as both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrEventNotFound), errors.Is(err, artifacts.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, verification.ErrProofUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrEventExists), errors.Is(err, ledger.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidIssuer),
		errors.Is(err, ledger.ErrCertOutOfRange),
		errors.Is(err, verification.ErrIncompleteRecord),
		errors.Is(err, merkle.ErrEmptyBatch),
		errors.Is(err, ingest.ErrNoRecords),
		errors.Is(err, ingest.ErrInvalidEncoding):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw(op+" failed", "request_id", getRequestID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	return nil
}

// handlePing answers liveness probes
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func readFormFile(r *http.Request, name string) ([]byte, bool, error) {
	file, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func parseUint(r *http.Request, name string) (uint64, bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an unsigned integer", name)
	}
	return v, true, nil
}

// handleUpload commits and anchors an uploaded batch
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Files not received correctly")
		return
	}

	eventID, ok, err := parseUint(r, "eventId")
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, "eventId must be an unsigned integer")
		return
	}
	uniqueKey, ok, err := parseUint(r, "uniqueKey")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		uniqueKey = eventID
	}

	req := &issuance.IssueRequest{
		Issuer:    r.FormValue("issuer"),
		UniqueKey: uniqueKey,
		EventName: r.FormValue("eventName"),
		EventID:   eventID,
	}

	csvData, hasCSV, err := readFormFile(r, "csv")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Files not received correctly")
		return
	}
	jsonData, hasJSON, err := readFormFile(r, "records")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Files not received correctly")
		return
	}
	switch {
	case hasCSV:
		req.Records, err = ingest.ParseCSV(bytes.NewReader(csvData))
	case hasJSON:
		req.Records, err = ingest.ParseJSON(jsonData)
	default:
		err = fmt.Errorf("a csv or records file is required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Template, _, err = readFormFile(r, "template"); err != nil {
		writeError(w, http.StatusBadRequest, "Files not received correctly")
		return
	}

	result, err := s.issuer.Issue(r.Context(), req)
	if err != nil {
		s.fail(w, r, "Upload", err)
		return
	}

	writeJSON(w, http.StatusOK, result.UploadResponse())
}

// handleClaim looks up a holder's credential and marks it claimed
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "userEmail is required")
		return
	}

	cred, err := s.verifier.LookupCredential(r.Context(), req.Issuer, req.UniqueKey, req.Email)
	if err != nil {
		s.fail(w, r, "Claim lookup", err)
		return
	}

	if _, err := s.ledger.Claim(r.Context(), req.Issuer, req.UniqueKey, uint32(cred.CertID)); err != nil {
		s.fail(w, r, "Claim", err)
		return
	}

	writeJSON(w, http.StatusOK, cred.ClaimResponse())
}

// handleVerify checks a holder's credential against the anchored root
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	res, err := s.verifier.VerifyCredential(r.Context(), req.Issuer, req.UniqueKey, req.Email)
	if err != nil {
		s.fail(w, r, "Verify", err)
		return
	}

	proof := res.Proof
	if proof == nil {
		proof = []types.Hash{}
	}
	writeJSON(w, http.StatusOK, &types.VerifyResponse{
		Verified: res.Verified,
		Root:     res.Root,
		Leaf:     res.Leaf,
		CertID:   res.CertID,
		Proof:    proof,
	})
}

// handleListEvents lists the events of an issuer
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.ledger.ListEvents(r.Context(), r.URL.Query().Get("issuer"))
	if err != nil {
		s.fail(w, r, "List events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleContent serves a pinned artifact by content id
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cid := strings.TrimPrefix(r.URL.Path, "/content/")
	if !persistence.ValidContentID(cid) {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return
	}

	data, err := s.content.GetContent(r.Context(), cid)
	if err != nil {
		s.fail(w, r, "Get content", err)
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}
