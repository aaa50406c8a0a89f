// Package validation checks tool parameters once at the boundary, before
// any handler runs.
package validation

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
	"github.com/DogukanGun/XReplyAgent/internal/units"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 10000

var (
	// ethAddressRegex validates Ethereum addresses
	ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// hexRegex validates hex strings (calldata, hashes)
	hexRegex = regexp.MustCompile(`^(0x)?[a-fA-F0-9]+$`)
	// segmentRegex validates values interpolated into a vendor URL path
	segmentRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a valid Ethereum address
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// IsValidHex checks if a string is valid hex
func IsValidHex(s string) bool {
	return hexRegex.MatchString(s)
}

// IsPathSegment checks that s can stand alone as one URL path segment.
func IsPathSegment(s string) bool {
	return segmentRegex.MatchString(s) && strings.Trim(s, ".") != ""
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Context lists every failing field for error envelopes.
func (e ValidationErrors) Context() map[string]any {
	fields := make(map[string]string, len(e))
	for _, v := range e {
		fields[v.Field] = v.Message
	}
	return map[string]any{"fields": fields}
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		must(v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return units.IsDecimal(s) && strings.Trim(s, "0.") != ""
		}))
		must(v.RegisterValidation("chain", func(fl validator.FieldLevel) bool {
			return chains.IsKnown(fl.Field().String())
		}))
		must(v.RegisterValidation("evmchain", func(fl validator.FieldLevel) bool {
			c, err := chains.Lookup(fl.Field().String())
			return err == nil && c.IsEVM()
		}))
		must(v.RegisterValidation("pathseg", func(fl validator.FieldLevel) bool {
			return IsPathSegment(fl.Field().String())
		}))
		must(v.RegisterValidation("family", func(fl validator.FieldLevel) bool {
			_, err := chains.ParseFamily(fl.Field().String())
			return err == nil
		}))
		must(v.RegisterValidation("evmaddr", func(fl validator.FieldLevel) bool {
			return IsValidEthAddress(fl.Field().String())
		}))
		must(v.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || s == "0x" || IsValidHex(s)
		}))
		validate = v
	})
	return validate
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates v's `validate` tags. Failures come back as
// ValidationErrors keyed by JSON field name.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func evmSlugs() []string {
	var out []string
	for _, c := range chains.All() {
		if c.IsEVM() {
			out = append(out, c.Slug)
		}
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "amount":
		return "must be a positive decimal amount like \"1.5\""
	case "chain":
		return "must be one of " + strings.Join(chains.Slugs(), ", ")
	case "evmchain":
		return "must be an EVM chain: " + strings.Join(evmSlugs(), ", ")
	case "pathseg":
		return "must contain only letters, digits, '.', '_', ':' or '-'"
	case "family":
		return "must be one of evm, solana, aptos"
	case "evmaddr":
		return "must be a valid Ethereum address (0x...)"
	case "hexdata":
		return "must be hex encoded"
	case "max":
		return "exceeds maximum length " + fe.Param()
	case "gte", "lte", "gt", "lt":
		return "must be " + fe.Tag() + " " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "datetime":
		return "must be a date in the form " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}
