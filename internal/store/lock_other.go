//go:build !unix

package store

// FileLock is a no-op where flock is unavailable; the in-process mutex in the
// reconciliation engine still serializes writers.
type FileLock struct {
	path string
}

// NewFileLock returns a lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock always succeeds.
func (l *FileLock) Lock() error { return nil }

// Unlock always succeeds.
func (l *FileLock) Unlock() error { return nil }
