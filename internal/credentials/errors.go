package credentials

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrMissingIdentity     = errors.New("missing identity")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrMalformedCredential = errors.New("malformed credential")
)

// ResolutionError is returned when an invocation is rejected before its
// handler runs. It names the parameter and external id that failed and
// never carries key material or the store's own error text.
type ResolutionError struct {
	Kind       error
	Field      string
	ExternalID string
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ErrMissingIdentity:
		return fmt.Sprintf("%s is required for all MCP tool calls", e.Field)
	case ErrIdentityNotFound:
		return fmt.Sprintf("no user found for %s=%s; create a wallet first", e.Field, e.ExternalID)
	case ErrMalformedCredential:
		return fmt.Sprintf("stored credential for %s=%s is malformed", e.Field, e.ExternalID)
	}
	return fmt.Sprintf("credential resolution failed for %s=%s", e.Field, e.ExternalID)
}

func (e *ResolutionError) Unwrap() error { return e.Kind }

// Context returns the caller-safe details for a response envelope.
func (e *ResolutionError) Context() map[string]any {
	ctx := map[string]any{"field": e.Field}
	if e.ExternalID != "" {
		ctx["external_id"] = e.ExternalID
	}
	return ctx
}
