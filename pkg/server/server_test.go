package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/issuance"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/persistence/memory"
	"github.com/Layr-Labs/forj-go/pkg/types"
	"github.com/Layr-Labs/forj-go/pkg/verification"
)

const (
	testIssuer  = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	contentBase = "http://localhost:3001/content/"
	testCSV     = "Ann,E001,ann@example.com,Winner\nBob,E002,bob@example.com\nCy,E003,cy@example.com,\n"
)

func newTestServer(t *testing.T, rateLimit float64) (*Server, *memory.MemoryPersistence) {
	t.Helper()
	store := memory.NewMemoryPersistence()
	l := ledger.NewLedger(store, zap.NewNop())
	issuer := issuance.NewIssuer(store, l, issuance.Config{ContentBaseURL: contentBase}, zap.NewNop())
	verifier := verification.NewVerifier(l, store, verification.Config{VerifyBaseURL: "http://localhost:3001/verify/"}, zap.NewNop())
	s := NewServer(Config{Port: 0, RateLimit: rateLimit, MaxUploadSize: 1 << 20}, issuer, verifier, l, store, zap.NewNop())
	return s, store
}

func uploadRequest(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(name, name+".dat")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.GetHandler().ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, path string, v interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
}

func upload(t *testing.T, s *Server) *types.UploadResponse {
	t.Helper()
	w := serve(s, uploadRequest(t,
		map[string]string{"issuer": testIssuer, "eventName": "Hackathon", "eventId": "7"},
		map[string]string{"csv": testCSV, "template": "%PDF-1.4 template"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = serve(s, httptest.NewRequest(http.MethodPost, "/ping", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	s, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "5b0a4c3e-8f7e-4b7e-9d51-0c2f1f4b6a11")
	w := serve(s, req)
	assert.Equal(t, "5b0a4c3e-8f7e-4b7e-9d51-0c2f1f4b6a11", w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "not a uuid")
	w = serve(s, req)
	assert.NotEqual(t, "not a uuid", w.Header().Get(HeaderRequestID))
}

func TestUpload(t *testing.T) {
	s, store := newTestServer(t, 0)
	resp := upload(t, s)

	assert.Equal(t, testIssuer, resp.Issuer)
	assert.Equal(t, uint64(7), resp.UniqueKey)
	assert.Equal(t, uint32(3), resp.BatchSize)
	assert.Equal(t, []byte{0}, resp.BitMap)
	assert.True(t, strings.HasPrefix(resp.MetadataURI, contentBase))
	assert.True(t, strings.HasPrefix(resp.TemplateURI, contentBase))

	cid := strings.TrimPrefix(resp.MerkleProofURI, contentBase)
	data, err := store.GetContent(context.Background(), cid)
	require.NoError(t, err)
	assert.NotNil(t, data)

	// Same key again
	w := serve(s, uploadRequest(t,
		map[string]string{"issuer": testIssuer, "eventName": "Hackathon", "eventId": "7"},
		map[string]string{"csv": testCSV},
	))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpload_JSONRecords(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := serve(s, uploadRequest(t,
		map[string]string{"issuer": testIssuer, "eventName": "Hackathon", "eventId": "1", "uniqueKey": "100"},
		map[string]string{"records": `[{"name":"Ann","enroll":"E1","email":"ann@example.com","position":null}]`},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(100), resp.UniqueKey)
	assert.Equal(t, uint64(1), resp.EventID)
}

func TestUpload_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, 0)

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
	}{
		{"missing event id", map[string]string{"issuer": testIssuer}, map[string]string{"csv": testCSV}},
		{"bad event id", map[string]string{"issuer": testIssuer, "eventId": "x"}, map[string]string{"csv": testCSV}},
		{"no file", map[string]string{"issuer": testIssuer, "eventId": "1"}, nil},
		{"short row", map[string]string{"issuer": testIssuer, "eventId": "1"}, map[string]string{"csv": "Ann,E1\n"}},
		{"empty csv", map[string]string{"issuer": testIssuer, "eventId": "1"}, map[string]string{"csv": "\n"}},
		{"bad issuer", map[string]string{"issuer": "someone", "eventId": "1"}, map[string]string{"csv": testCSV}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, uploadRequest(t, tt.fields, tt.files))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := serve(s, httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 0)
	uploaded := upload(t, s)

	w := serve(s, jsonRequest(t, "/api/verify", types.VerifyRequest{Issuer: testIssuer, UniqueKey: 7, Email: "bob@example.com"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, 1, resp.CertID)
	assert.Equal(t, uploaded.MerkleRoot, resp.Root)
	assert.Len(t, resp.Proof, 2)

	w = serve(s, jsonRequest(t, "/api/verify", types.VerifyRequest{Issuer: testIssuer, UniqueKey: 7, Email: "nobody@example.com"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, jsonRequest(t, "/api/verify", types.VerifyRequest{Issuer: testIssuer, UniqueKey: 8, Email: "bob@example.com"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/verify", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyEndpoint_ContentUnavailable(t *testing.T) {
	store := memory.NewMemoryPersistence()
	l := ledger.NewLedger(store, zap.NewNop())
	issuer := issuance.NewIssuer(store, l, issuance.Config{ContentBaseURL: contentBase}, zap.NewNop())
	var empty persistence.IContentStore = memory.NewMemoryPersistence()
	verifier := verification.NewVerifier(l, empty, verification.Config{}, zap.NewNop())
	s := NewServer(Config{MaxUploadSize: 1 << 20}, issuer, verifier, l, empty, zap.NewNop())

	upload(t, s)

	w := serve(s, jsonRequest(t, "/api/verify", types.VerifyRequest{Issuer: testIssuer, UniqueKey: 7, Email: "bob@example.com"}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClaimEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 0)
	upload(t, s)

	claim := types.ClaimRequest{Issuer: testIssuer, UniqueKey: 7, Email: "ann@example.com"}
	w := serve(s, jsonRequest(t, "/api/claim", claim))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.ClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ann", resp.Name)
	assert.Equal(t, "Hackathon", resp.EventName)
	require.NotNil(t, resp.Position)
	assert.Equal(t, "Winner", *resp.Position)
	assert.Equal(t, "http://localhost:3001/verify/"+testIssuer+"/7/ann@example.com", resp.VerifyURL)

	w = serve(s, jsonRequest(t, "/api/claim", claim))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(s, jsonRequest(t, "/api/claim", types.ClaimRequest{Issuer: testIssuer, UniqueKey: 7, Email: "nobody@example.com"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/events?issuer="+testIssuer, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var events []*persistence.EventRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].IssuedCerts)
	assert.Equal(t, uint64(2), events[0].RemainingCerts)
	assert.Equal(t, []byte{0x01}, events[0].BitMap)
}

func TestContentEndpoint(t *testing.T) {
	s, _ := newTestServer(t, 0)
	uploaded := upload(t, s)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/content/"+strings.TrimPrefix(uploaded.MerkleProofURI, contentBase), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var proofs [][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proofs))
	assert.Len(t, proofs, 3)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/content/"+persistence.ContentID([]byte("missing")), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/content/zz", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	upper := strings.ToUpper(strings.TrimPrefix(uploaded.MerkleProofURI, contentBase))
	w = serve(s, httptest.NewRequest(http.MethodGet, "/content/"+upper, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, 1)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		codes = append(codes, serve(s, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}
