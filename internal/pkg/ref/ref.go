// Package ref generates business references for billing records, e.g.
// SUB-01J8ZK...; the ULID part keeps them sortable by creation time.
package ref

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a reference with the given prefix, e.g. New("INV") = "INV-…".
func New(prefix string) string {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	mu.Unlock()
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Subscription, Invoice, Payment and Customer references.
func Subscription() string { return New("SUB") }
func Invoice() string      { return New("INV") }
func Payment() string      { return New("PAY") }
func Customer() string     { return New("CUS") }
