// Package identity stores the association between an external identity
// (a social account id) and the chain keypairs provisioned for it.
//
// The credential middleware consumes this package read-only through Finder.
// Writes happen only through the wallet provisioning path.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

//go:generate mockgen -destination=mock_identity/mock_identity.go . Finder,Store

var (
	ErrNotFound      = errors.New("identity not found")
	ErrAlreadyExists = errors.New("identity already exists")
)

// NormalizeExternalID is the one form an external id is stored and looked
// up under: surrounding whitespace is dropped.
func NormalizeExternalID(id string) string {
	return strings.TrimSpace(id)
}

// Record is one stored keypair for an external identity on one chain family.
// PublicKey and PrivateKey are kept exactly as stored; encodings vary
// (prefix present or not, leading zeros truncated).
type Record struct {
	ExternalID string        `json:"external_id"`
	Family     chains.Family `json:"family"`
	PublicKey  string        `json:"public_key"`
	PrivateKey string        `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
}

// String omits the private key.
func (r Record) String() string {
	return fmt.Sprintf("identity{%s/%s %s}", r.ExternalID, r.Family, r.PublicKey)
}

// LogValue keeps key material out of structured logs.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("external_id", r.ExternalID),
		slog.String("family", string(r.Family)),
		slog.String("public_key", r.PublicKey),
	)
}

// Finder is the read-only lookup the credential middleware depends on.
// Implementations return ErrNotFound when no record exists.
type Finder interface {
	FindIdentity(ctx context.Context, externalID string, family chains.Family) (*Record, error)
}

// Store persists identity records.
type Store interface {
	Finder
	CreateIdentity(ctx context.Context, rec *Record) error
	ListIdentities(ctx context.Context, externalID string) ([]*Record, error)
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memKey]*Record
}

type memKey struct {
	externalID string
	family     chains.Family
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memKey]*Record)}
}

func (s *MemoryStore) FindIdentity(_ context.Context, externalID string, family chains.Family) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[memKey{externalID, family}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) CreateIdentity(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey{rec.ExternalID, rec.Family}
	if _, ok := s.records[k]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.records[k] = &cp
	return nil
}

func (s *MemoryStore) ListIdentities(_ context.Context, externalID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for k, rec := range s.records {
		if k.externalID == externalID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sortByFamily(out)
	return out, nil
}

func sortByFamily(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Family < recs[j].Family })
}
