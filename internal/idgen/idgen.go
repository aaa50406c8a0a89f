// Package idgen mints identifiers for log and trace correlation.
package idgen

import (
	"github.com/google/uuid"
)

// InvocationPrefix marks tool invocation ids.
const InvocationPrefix = "inv_"

// Invocation returns a time-ordered id for one tool invocation, so ids
// from the same process sort in call order.
func Invocation() string {
	return InvocationPrefix + uuid.Must(uuid.NewV7()).String()
}
