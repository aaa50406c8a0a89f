//go:build integration

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
	"github.com/DogukanGun/XReplyAgent/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := identity.NewPostgresStore(db)

	_, err := store.FindIdentity(ctx, "alice", chains.FamilyAptos)
	assert.ErrorIs(t, err, identity.ErrNotFound)

	rec := &identity.Record{ExternalID: "alice", Family: chains.FamilyAptos, PublicKey: "1f", PrivateKey: "abc123"}
	require.NoError(t, store.CreateIdentity(ctx, rec))
	assert.ErrorIs(t, store.CreateIdentity(ctx, rec), identity.ErrAlreadyExists)

	got, err := store.FindIdentity(ctx, "alice", chains.FamilyAptos)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.PrivateKey)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)

	p := identity.NewProvisioner(store, discard())
	recs, created, err := p.CreateOrGet(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, recs, len(chains.Families))

	listed, err := store.ListIdentities(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, listed, len(chains.Families))
}
