package types

// UploadResponse is returned by the batch upload endpoint once the batch has
// been committed and anchored.
type UploadResponse struct {
	Issuer         string `json:"issuer"`
	UniqueKey      uint64 `json:"uniqueKey"`
	EventName      string `json:"eventName"`
	EventID        uint64 `json:"eventId"`
	BatchSize      uint32 `json:"batchSize"`
	BitMap         []byte `json:"bitMap"`
	MerkleRoot     Hash   `json:"merkleRoot"`
	MetadataURI    string `json:"metadataUri"`
	TemplateURI    string `json:"templateUri"`
	MerkleProofURI string `json:"merkleProofUri"`
}

// ClaimRequest asks for the credential issued to Email under one event.
type ClaimRequest struct {
	Issuer    string `json:"pubkey"`
	UniqueKey uint64 `json:"uniqueKey"`
	Email     string `json:"userEmail"`
}

// ClaimResponse carries the fields needed to render a certificate.
type ClaimResponse struct {
	Name        string  `json:"name"`
	Enroll      *string `json:"enroll"`
	Email       *string `json:"email"`
	Position    *string `json:"position"`
	EventName   string  `json:"eventName"`
	TemplateURI string  `json:"templateUri"`
	VerifyURL   string  `json:"verifyUrl"`
	CertID      int     `json:"certId"`
}

// VerifyRequest asks whether the credential issued to Email verifies against
// the on-ledger root of the event.
type VerifyRequest struct {
	Issuer    string `json:"issuer"`
	UniqueKey uint64 `json:"uniqueKey"`
	Email     string `json:"email"`
}

// VerifyResponse is the verification outcome. Verified=false is a normal
// answer, not an error.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Root     Hash   `json:"root"`
	Leaf     Hash   `json:"leaf"`
	CertID   int    `json:"certId"`
	Proof    []Hash `json:"proof"`
}
