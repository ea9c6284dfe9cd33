// Package persistencetest holds the behavior every IForjPersistence backend
// must share, run from each backend's own tests.
package persistencetest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

// NewEvent returns a populated event for issuer and uniqueKey.
func NewEvent(issuer string, uniqueKey uint64) *persistence.EventRecord {
	var key types.EventKey
	copy(key[:], fmt.Sprintf("%s/%d", issuer, uniqueKey))
	return &persistence.EventRecord{
		Key:             key,
		Issuer:          issuer,
		UniqueKey:       uniqueKey,
		EventName:       fmt.Sprintf("Event %d", uniqueKey),
		EventID:         uniqueKey,
		BatchSize:       12,
		BitMap:          []byte{0x00, 0x00},
		MerkleRoot:      types.Hash{byte(uniqueKey), 0xab},
		IssuedTimestamp: 1700000000,
		MetadataURI:     "http://localhost/content/records",
		TemplateURI:     "http://localhost/content/template",
		MerkleProofURI:  "http://localhost/content/proofs",
		RemainingCerts:  12,
	}
}

// Run exercises a fresh store created by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) persistence.IForjPersistence) {
	ctx := context.Background()

	t.Run("SaveAndLoadEvent", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		event := NewEvent("issuer-a", 1)
		require.NoError(t, store.SaveEvent(ctx, event))

		loaded, err := store.LoadEvent(ctx, event.Key)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, event, loaded)
	})

	t.Run("LoadEvent_NotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.LoadEvent(ctx, types.EventKey{0xde, 0xad})
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveEvent_Overwrites", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		event := NewEvent("issuer-a", 2)
		require.NoError(t, store.SaveEvent(ctx, event))

		updated := event.Clone()
		updated.BitMap[0] = 0x05
		updated.IssuedCerts = 2
		updated.RemainingCerts = 10
		require.NoError(t, store.SaveEvent(ctx, updated))

		loaded, err := store.LoadEvent(ctx, event.Key)
		require.NoError(t, err)
		assert.Equal(t, updated, loaded)
	})

	t.Run("SaveEvent_Nil", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		require.Error(t, store.SaveEvent(ctx, nil))
	})

	t.Run("LoadedEventIsACopy", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		event := NewEvent("issuer-a", 3)
		require.NoError(t, store.SaveEvent(ctx, event))
		event.BitMap[0] = 0xff

		loaded, err := store.LoadEvent(ctx, event.Key)
		require.NoError(t, err)
		assert.Equal(t, byte(0x00), loaded.BitMap[0])

		loaded.BitMap[1] = 0xff
		again, err := store.LoadEvent(ctx, event.Key)
		require.NoError(t, err)
		assert.Equal(t, byte(0x00), again.BitMap[1])
	})

	t.Run("ListEvents", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		for _, k := range []uint64{30, 10, 20} {
			require.NoError(t, store.SaveEvent(ctx, NewEvent("issuer-list", k)))
		}
		require.NoError(t, store.SaveEvent(ctx, NewEvent("issuer-other", 5)))

		events, err := store.ListEvents(ctx, "issuer-list")
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, uint64(10), events[0].UniqueKey)
		assert.Equal(t, uint64(20), events[1].UniqueKey)
		assert.Equal(t, uint64(30), events[2].UniqueKey)

		none, err := store.ListEvents(ctx, "issuer-none")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("PutAndGetContent", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		small := []byte(`[["aa","bb"]]`)
		large := bytes.Repeat([]byte(`{"name":"Ann","email":"ann@example.com"},`), 100)

		for _, data := range [][]byte{small, large} {
			cid, err := store.PutContent(ctx, data)
			require.NoError(t, err)
			assert.Equal(t, persistence.ContentID(data), cid)

			again, err := store.PutContent(ctx, data)
			require.NoError(t, err)
			assert.Equal(t, cid, again)

			loaded, err := store.GetContent(ctx, cid)
			require.NoError(t, err)
			assert.Equal(t, data, loaded)
		}
	})

	t.Run("GetContent_NotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		loaded, err := store.GetContent(ctx, persistence.ContentID([]byte("never stored")))
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				event := NewEvent("issuer-concurrent", uint64(100+i))
				assert.NoError(t, store.SaveEvent(ctx, event))
				_, err := store.LoadEvent(ctx, event.Key)
				assert.NoError(t, err)
				_, err = store.PutContent(ctx, []byte(fmt.Sprintf("blob-%d", i)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		events, err := store.ListEvents(ctx, "issuer-concurrent")
		require.NoError(t, err)
		assert.Len(t, events, 10)
	})

	t.Run("HealthCheckAndClose", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.HealthCheck())
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		require.Error(t, store.HealthCheck())
		require.Error(t, store.SaveEvent(ctx, NewEvent("issuer-a", 1)))
		_, err := store.LoadEvent(ctx, types.EventKey{})
		require.Error(t, err)
		_, err = store.PutContent(ctx, []byte("x"))
		require.Error(t, err)
		_, err = store.GetContent(ctx, persistence.ContentID([]byte("x")))
		require.Error(t, err)
	})
}
