package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/syncutil"
)

// Provisioner creates wallets for external identities on first use.
type Provisioner struct {
	store    Store
	families []chains.Family
	logger   *slog.Logger
	now      func() time.Time
	locks    *syncutil.KeyLock
}

// NewProvisioner returns a provisioner that ensures every family in
// families has a keypair. An empty list means all supported families.
func NewProvisioner(store Store, logger *slog.Logger, families ...chains.Family) *Provisioner {
	if len(families) == 0 {
		families = chains.Families
	}
	return &Provisioner{store: store, families: families, logger: logger, now: time.Now, locks: syncutil.NewKeyLock()}
}

// CreateOrGet returns the identity's records, generating any missing
// family. created reports whether at least one keypair was generated.
// Calls for one identity are serialized inside this process; across
// processes a losing insert re-reads the winner.
func (p *Provisioner) CreateOrGet(ctx context.Context, externalID string) (recs []*Record, created bool, err error) {
	externalID = NormalizeExternalID(externalID)
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	unlock, err := p.locks.Lock(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	for _, fam := range p.families {
		rec, err := p.store.FindIdentity(ctx, externalID, fam)
		if err == nil {
			recs = append(recs, rec)
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("lookup %s identity: %w", fam, err)
		}

		kp, err := GenerateKeyPair(fam)
		if err != nil {
			return nil, false, err
		}
		rec = &Record{
			ExternalID: externalID,
			Family:     fam,
			PublicKey:  kp.PublicKey,
			PrivateKey: kp.PrivateKey,
			CreatedAt:  p.now().UTC(),
		}
		switch err := p.store.CreateIdentity(ctx, rec); {
		case err == nil:
			created = true
			metrics.WalletsProvisionedTotal.WithLabelValues(string(fam)).Inc()
			p.logger.Info("wallet provisioned", "external_id", externalID, "family", fam, "public_key", rec.PublicKey)
		case errors.Is(err, ErrAlreadyExists):
			if rec, err = p.store.FindIdentity(ctx, externalID, fam); err != nil {
				return nil, false, fmt.Errorf("re-read %s identity: %w", fam, err)
			}
		default:
			return nil, false, fmt.Errorf("store %s identity: %w", fam, err)
		}
		recs = append(recs, rec)
	}
	return recs, created, nil
}
