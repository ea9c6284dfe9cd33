package verification

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/issuance"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence/memory"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

const (
	testIssuer  = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	contentBase = "http://localhost:3001/content/"
	verifyBase  = "http://localhost:3001/verify/"
)

type fixture struct {
	store    *memory.MemoryPersistence
	ledger   *ledger.Ledger
	verifier *Verifier
	records  []types.Record
	result   *issuance.IssueResult
}

func testRecords(n int) []types.Record {
	records := make([]types.Record, n)
	for i := range records {
		records[i] = types.Record{
			types.FieldName:     types.StringPtr(fmt.Sprintf("Student %d", i)),
			types.FieldEnroll:   types.StringPtr(fmt.Sprintf("E%03d", i)),
			types.FieldEmail:    types.StringPtr(fmt.Sprintf("student%d@example.com", i)),
			types.FieldPosition: nil,
		}
	}
	return records
}

func newFixture(t *testing.T, records []types.Record, scheme merkle.HashScheme) *fixture {
	t.Helper()
	store := memory.NewMemoryPersistence()
	l := ledger.NewLedger(store, zap.NewNop())
	issuer := issuance.NewIssuer(store, l, issuance.Config{ContentBaseURL: contentBase, Scheme: scheme}, zap.NewNop())

	result, err := issuer.Issue(context.Background(), &issuance.IssueRequest{
		Issuer:    testIssuer,
		UniqueKey: 1,
		EventName: "Hackathon",
		EventID:   1,
		Records:   records,
	})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		ledger:   l,
		verifier: NewVerifier(l, store, Config{VerifyBaseURL: verifyBase}, zap.NewNop()),
		records:  records,
		result:   result,
	}
}

// repoint swaps one artifact of the anchored event for data.
func (f *fixture) repoint(t *testing.T, data []byte, proofs bool) {
	t.Helper()
	ctx := context.Background()
	cid, err := f.store.PutContent(ctx, data)
	require.NoError(t, err)

	event, err := f.store.LoadEvent(ctx, f.result.Event.Key)
	require.NoError(t, err)
	if proofs {
		event.MerkleProofURI = contentBase + cid
	} else {
		event.MetadataURI = contentBase + cid
	}
	require.NoError(t, f.store.SaveEvent(ctx, event))
}

func TestVerifyCredential(t *testing.T) {
	for _, n := range []int{1, 3, 4, 5, 17} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			f := newFixture(t, testRecords(n), nil)
			for i := 0; i < n; i++ {
				res, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, fmt.Sprintf("student%d@example.com", i))
				require.NoError(t, err)
				assert.True(t, res.Verified, "record %d", i)
				assert.Equal(t, i, res.CertID)
				assert.Equal(t, f.result.Descriptor.Root, res.Root)
			}
		})
	}
}

func TestVerifyCredential_DomainSeparated(t *testing.T) {
	f := newFixture(t, testRecords(6), merkle.DomainSeparatedScheme)
	res, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "student4@example.com")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestVerifyCredential_RecordNotFound(t *testing.T) {
	f := newFixture(t, testRecords(3), nil)
	_, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "nobody@example.com")
	assert.ErrorIs(t, err, artifacts.ErrRecordNotFound)
}

func TestVerifyCredential_EventMissing(t *testing.T) {
	f := newFixture(t, testRecords(3), nil)
	_, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 2, "student0@example.com")
	assert.ErrorIs(t, err, ErrProofUnavailable)
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestVerifyCredential_ContentMissing(t *testing.T) {
	f := newFixture(t, testRecords(3), nil)
	v := NewVerifier(f.ledger, memory.NewMemoryPersistence(), Config{}, zap.NewNop())
	_, err := v.VerifyCredential(context.Background(), testIssuer, 1, "student0@example.com")
	assert.ErrorIs(t, err, ErrProofUnavailable)
}

func TestVerifyCredential_GarbageArtifact(t *testing.T) {
	f := newFixture(t, testRecords(3), nil)
	f.repoint(t, []byte("not json"), true)
	_, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "student0@example.com")
	assert.ErrorIs(t, err, ErrProofUnavailable)
}

func TestVerifyCredential_TamperedRecord(t *testing.T) {
	records := testRecords(4)
	f := newFixture(t, records, nil)

	tampered := make([]types.Record, len(records))
	copy(tampered, records)
	tampered[2] = records[2].With(types.FieldPosition, types.StringPtr("Winner"))
	data, err := artifacts.EncodeRecords(tampered)
	require.NoError(t, err)
	f.repoint(t, data, false)

	res, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "student2@example.com")
	require.NoError(t, err)
	assert.False(t, res.Verified)

	res, err = f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "student1@example.com")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestVerifyCredential_ShortProofList(t *testing.T) {
	f := newFixture(t, testRecords(4), nil)
	f.repoint(t, []byte(`[[]]`), true)

	res, err := f.verifier.VerifyCredential(context.Background(), testIssuer, 1, "student3@example.com")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, 3, res.CertID)
}

func TestLookupCredential(t *testing.T) {
	records := testRecords(3)
	records[1] = records[1].With(types.FieldPosition, types.StringPtr("Runner-up"))
	f := newFixture(t, records, nil)

	cred, err := f.verifier.LookupCredential(context.Background(), testIssuer, 1, "student1@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, cred.CertID)
	assert.Equal(t, verifyBase+testIssuer+"/1/student1@example.com", cred.VerifyURL)

	resp := cred.ClaimResponse()
	assert.Equal(t, "Student 1", resp.Name)
	require.NotNil(t, resp.Position)
	assert.Equal(t, "Runner-up", *resp.Position)
	assert.Equal(t, "Hackathon", resp.EventName)

	_, err = f.verifier.LookupCredential(context.Background(), testIssuer, 1, "nobody@example.com")
	assert.ErrorIs(t, err, artifacts.ErrRecordNotFound)

	_, err = f.verifier.LookupCredential(context.Background(), testIssuer, 9, "student1@example.com")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestLookupCredential_Incomplete(t *testing.T) {
	records := testRecords(2)
	records[0] = records[0].With(types.FieldEnroll, types.StringPtr(""))
	f := newFixture(t, records, nil)

	_, err := f.verifier.LookupCredential(context.Background(), testIssuer, 1, "student0@example.com")
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}
