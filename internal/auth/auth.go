// Package auth gates the HTTP transport behind static API keys.
//
// Keys are configured as a list (MCP_API_KEYS). Only their SHA-256 hashes
// are kept in memory, and comparison is constant time. An empty key set
// leaves the transport open, which is what the stdio transport and local
// development use.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyKeyID is the gin context key holding the matched key's id.
const ContextKeyKeyID = "apiKeyID"

// Keys is a set of accepted API keys.
type Keys struct {
	hashes [][sha256.Size]byte
}

// NewKeys hashes raw. Blank entries are ignored.
func NewKeys(raw ...string) *Keys {
	k := &Keys{}
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			k.hashes = append(k.hashes, sha256.Sum256([]byte(r)))
		}
	}
	return k
}

// Enabled reports whether any key is configured.
func (k *Keys) Enabled() bool { return k != nil && len(k.hashes) > 0 }

// Match returns a short id for raw (the first eight hex digits of its
// hash) when it is one of the configured keys.
func (k *Keys) Match(raw string) (string, bool) {
	if !k.Enabled() || raw == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(raw))
	found := 0
	for i := range k.hashes {
		found |= subtle.ConstantTimeCompare(sum[:], k.hashes[i][:])
	}
	if found == 0 {
		return "", false
	}
	return hex.EncodeToString(sum[:4]), true
}

// FromRequest extracts the key from "Authorization: Bearer ..." or
// X-API-Key.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return strings.TrimSpace(h)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// RequireKey rejects requests without a configured key. The rejection is
// a JSON-RPC error so MCP clients surface it like a server error.
func RequireKey(k *Keys) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !k.Enabled() || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		id, ok := k.Match(FromRequest(c.Request))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="mcp"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"jsonrpc": "2.0",
				"id":      nil,
				"error": gin.H{
					"code":    -32001,
					"message": "API key required. Include 'Authorization: Bearer <key>' header.",
				},
			})
			return
		}
		c.Set(ContextKeyKeyID, id)
		c.Next()
	}
}
