// Package memory holds in-memory implementations of the domain repositories.
// They back the service test suites and mirror the semantics of the postgres
// repositories, including the natural-key create-if-absent behavior.
package memory

import "sync"

// store is the shared locking base for the in-memory repositories.
type store struct {
	mu     sync.Mutex
	nextID int64
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}
