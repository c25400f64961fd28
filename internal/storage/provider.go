// Package storage defines the input-directory file-system abstraction.
package storage

import "time"

// Entry describes one file found directly under the storage root.
type Entry struct {
	Name    string
	Path    string // absolute
	Size    int64
	ModTime time.Time
}

// Provider is the interface for input file operations. Names are relative to the root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns the files directly under the root whose extension matches ext
	// (case-insensitive), sorted by name.
	List(ext string) ([]Entry, error)
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically writes content to the named file.
	Write(name string, content []byte) error
}
