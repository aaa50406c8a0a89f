package identity

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "identities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	created := time.Unix(1700000000, 0).UTC()

	_, err := s.FindIdentity(ctx, "alice", chains.FamilyAptos)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateIdentity(ctx, &Record{
		ExternalID: "alice",
		Family:     chains.FamilyAptos,
		PublicKey:  "1f",
		PrivateKey: "abc123",
		CreatedAt:  created,
	}))

	rec, err := s.FindIdentity(ctx, "alice", chains.FamilyAptos)
	require.NoError(t, err)
	assert.Equal(t, "1f", rec.PublicKey)
	assert.Equal(t, "abc123", rec.PrivateKey)
	assert.Equal(t, created, rec.CreatedAt)
}

func TestSQLiteStore_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	rec := &Record{ExternalID: "bob", Family: chains.FamilyEVM, PublicKey: "0x01", PrivateKey: "01"}

	require.NoError(t, s.CreateIdentity(ctx, rec))
	assert.ErrorIs(t, s.CreateIdentity(ctx, rec), ErrAlreadyExists)
}

func TestSQLiteStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	for _, f := range []chains.Family{chains.FamilySolana, chains.FamilyEVM} {
		require.NoError(t, s.CreateIdentity(ctx, &Record{ExternalID: "carol", Family: f, PublicKey: "p", PrivateKey: "k"}))
	}

	recs, err := s.ListIdentities(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, chains.FamilyEVM, recs[0].Family)
	assert.Equal(t, chains.FamilySolana, recs[1].Family)
}

func TestSQLiteStore_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.CreateIdentity(ctx, &Record{ExternalID: "dave", Family: chains.FamilyEVM, PublicKey: "p", PrivateKey: "k"})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok, "exactly one insert wins")
}
