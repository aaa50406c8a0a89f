// Package credentials resolves caller-supplied external identities into
// chain credentials before a tool handler runs.
//
// Every invocation goes through the same steps: check the identity
// fields are present, look each one up, normalize the stored key and
// address into the family's canonical encoding, write one audit line and
// call the handler. Any failure stops the invocation before the handler
// is reached. Nothing is cached between invocations.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/traces"
)

// Parameter names carrying external identities.
const (
	FieldIdentity = "twitter_id"
	FieldSender   = "sender_twitter_id"
	FieldReceiver = "receiver_twitter_id"
)

// Outcome labels for xreply_credential_resolutions_total.
const (
	outcomeResolved  = "resolved"
	outcomeMissing   = "missing_identity"
	outcomeNotFound  = "not_found"
	outcomeLookupErr = "lookup_error"
	outcomeMalformed = "malformed"
)

// Credential is the normalized single-identity credential handed to a
// handler. It lives for one invocation.
type Credential struct {
	ExternalID string
	Family     chains.Family
	PrivateKey string // private_key_normalized
	Address    string // address_normalized
}

func (c Credential) String() string {
	return fmt.Sprintf("credential{%s/%s %s}", c.ExternalID, c.Family, c.Address)
}

func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("external_id", c.ExternalID),
		slog.String("family", string(c.Family)),
		slog.String("address", c.Address),
	)
}

// Pair is the dual-identity form: both keys resolve or neither is passed on.
type Pair struct {
	SenderID       string
	ReceiverID     string
	SenderFamily   chains.Family
	ReceiverFamily chains.Family
	SenderKey      string // sender_private_key_normalized
	ReceiverKey    string // receiver_private_key_normalized
}

func (p Pair) String() string {
	return fmt.Sprintf("pair{%s/%s -> %s/%s}", p.SenderID, p.SenderFamily, p.ReceiverID, p.ReceiverFamily)
}

func (p Pair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sender", p.SenderID),
		slog.String("receiver", p.ReceiverID),
	)
}

// Identified is implemented by single-identity tool parameters.
type Identified interface {
	ExternalID() string
	Family() chains.Family
}

// PairIdentified is implemented by dual-identity tool parameters.
type PairIdentified interface {
	SenderID() string
	ReceiverID() string
	SenderFamily() chains.Family
	ReceiverFamily() chains.Family
}

// Handler is a tool handler that needs one resolved credential.
type Handler[P, R any] func(ctx context.Context, params P, cred Credential) (R, error)

// PairHandler is a tool handler that needs a sender and a receiver key.
type PairHandler[P, R any] func(ctx context.Context, params P, pair Pair) (R, error)

// Resolver turns external ids into normalized credentials. It is safe for
// concurrent use; the Finder is its only shared dependency.
type Resolver struct {
	finder  identity.Finder
	formats map[chains.Family]chains.Format
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFormats overrides the per-family canonical encodings.
func WithFormats(formats map[chains.Family]chains.Format) Option {
	return func(r *Resolver) { r.formats = formats }
}

// NewResolver creates a resolver reading from finder.
func NewResolver(finder identity.Finder, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{finder: finder, formats: chains.Formats, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wrap returns h guarded by single-identity resolution.
func Wrap[P Identified, R any](r *Resolver, tool string, h Handler[P, R]) func(context.Context, P) (R, error) {
	return func(ctx context.Context, params P) (R, error) {
		var zero R
		cred, err := r.Resolve(ctx, FieldIdentity, params.ExternalID(), params.Family())
		if err != nil {
			return zero, err
		}
		r.audit(ctx, tool, slog.String("external_id", cred.ExternalID))
		return h(ctx, params, cred)
	}
}

// WrapPair returns h guarded by dual-identity resolution.
func WrapPair[P PairIdentified, R any](r *Resolver, tool string, h PairHandler[P, R]) func(context.Context, P) (R, error) {
	return func(ctx context.Context, params P) (R, error) {
		var zero R
		pair, err := r.ResolvePair(ctx, params.SenderID(), params.ReceiverID(), params.SenderFamily(), params.ReceiverFamily())
		if err != nil {
			return zero, err
		}
		r.audit(ctx, tool, slog.String("sender", pair.SenderID), slog.String("receiver", pair.ReceiverID))
		return h(ctx, params, pair)
	}
}

// Resolve looks up externalID and returns its normalized key and address.
// field names the parameter in errors.
func (r *Resolver) Resolve(ctx context.Context, field, externalID string, family chains.Family) (Credential, error) {
	externalID = identity.NormalizeExternalID(externalID)
	if externalID == "" {
		metrics.CredentialResolutionsTotal.WithLabelValues(outcomeMissing).Inc()
		return Credential{}, &ResolutionError{Kind: ErrMissingIdentity, Field: field}
	}

	rec, format, err := r.lookup(ctx, field, externalID, family)
	if err != nil {
		return Credential{}, err
	}

	key, err := format.PrivateKey(rec.PrivateKey)
	if err == nil {
		var addr string
		if addr, err = format.Address(rec.PublicKey); err == nil {
			metrics.CredentialResolutionsTotal.WithLabelValues(outcomeResolved).Inc()
			return Credential{ExternalID: externalID, Family: family, PrivateKey: key, Address: addr}, nil
		}
	}
	return Credential{}, r.malformed(ctx, field, externalID, err)
}

// ResolvePair resolves both sides. Presence of both ids is checked before
// any lookup; the first side to fail is named in the error.
func (r *Resolver) ResolvePair(ctx context.Context, senderID, receiverID string, senderFamily, receiverFamily chains.Family) (Pair, error) {
	senderID = identity.NormalizeExternalID(senderID)
	receiverID = identity.NormalizeExternalID(receiverID)
	for _, side := range []struct{ field, id string }{{FieldSender, senderID}, {FieldReceiver, receiverID}} {
		if side.id == "" {
			metrics.CredentialResolutionsTotal.WithLabelValues(outcomeMissing).Inc()
			return Pair{}, &ResolutionError{Kind: ErrMissingIdentity, Field: side.field}
		}
	}

	senderKey, err := r.resolveKey(ctx, FieldSender, senderID, senderFamily)
	if err != nil {
		return Pair{}, err
	}
	receiverKey, err := r.resolveKey(ctx, FieldReceiver, receiverID, receiverFamily)
	if err != nil {
		return Pair{}, err
	}

	metrics.CredentialResolutionsTotal.WithLabelValues(outcomeResolved).Inc()
	return Pair{
		SenderID:       senderID,
		ReceiverID:     receiverID,
		SenderFamily:   senderFamily,
		ReceiverFamily: receiverFamily,
		SenderKey:      senderKey,
		ReceiverKey:    receiverKey,
	}, nil
}

func (r *Resolver) resolveKey(ctx context.Context, field, externalID string, family chains.Family) (string, error) {
	rec, format, err := r.lookup(ctx, field, externalID, family)
	if err != nil {
		return "", err
	}
	key, err := format.PrivateKey(rec.PrivateKey)
	if err != nil {
		return "", r.malformed(ctx, field, externalID, err)
	}
	return key, nil
}

// lookup reads one record. A store failure is reported to the caller as
// not found; the cause is only logged.
func (r *Resolver) lookup(ctx context.Context, field, externalID string, family chains.Family) (*identity.Record, chains.Format, error) {
	format, ok := r.formats[family]
	if !ok {
		return nil, chains.Format{}, fmt.Errorf("no credential format for family %q", family)
	}

	ctx, span := traces.StartSpan(ctx, "credentials.resolve",
		traces.ExternalID(externalID), traces.Family(string(family)))
	rec, err := r.finder.FindIdentity(ctx, externalID, family)
	traces.End(span, err)

	switch {
	case err == nil && rec != nil:
		return rec, format, nil
	case err == nil, errors.Is(err, identity.ErrNotFound):
		metrics.CredentialResolutionsTotal.WithLabelValues(outcomeNotFound).Inc()
	default:
		metrics.CredentialResolutionsTotal.WithLabelValues(outcomeLookupErr).Inc()
		r.log(ctx).Warn("identity lookup failed", "field", field, "external_id", externalID, "family", family, "error", err)
	}
	return nil, chains.Format{}, &ResolutionError{Kind: ErrIdentityNotFound, Field: field, ExternalID: externalID}
}

func (r *Resolver) malformed(ctx context.Context, field, externalID string, cause error) error {
	metrics.CredentialResolutionsTotal.WithLabelValues(outcomeMalformed).Inc()
	r.log(ctx).Warn("stored credential rejected", "field", field, "external_id", externalID, "reason", cause)
	return &ResolutionError{Kind: ErrMalformedCredential, Field: field, ExternalID: externalID}
}

func (r *Resolver) audit(ctx context.Context, tool string, ids ...slog.Attr) {
	args := []any{slog.String("tool", tool)}
	for _, a := range ids {
		args = append(args, a)
	}
	r.log(ctx).Info("tool call", args...)
}

func (r *Resolver) log(ctx context.Context) *slog.Logger {
	if id := logging.InvocationID(ctx); id != "" {
		return r.logger.With("invocation_id", id)
	}
	return r.logger
}
