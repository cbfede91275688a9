// Package storage keeps flow documents as JSON files, one file per flow.
package storage

import (
	"strings"

	"github.com/tidwall/gjson"
)

// FlowStore persists flow documents
type FlowStore interface {
	// Save writes the document of the named flow and returns its location
	Save(name string, data []byte) (string, error)

	// Load returns the documents matching any of the glob patterns, sorted
	// by location and without duplicates
	Load(patterns ...string) ([]LocalFlow, error)
}

// LocalFlow is a flow document read from the store
type LocalFlow struct {
	Path    string
	Content []byte
}

// Valid reports whether the document looks like an exported flow. Exports
// always carry the entry point position.
func (f LocalFlow) Valid() bool {
	return gjson.ValidBytes(f.Content) && gjson.GetBytes(f.Content, "metadata.entryPointPosition.x").Exists()
}

// Name returns metadata.name
func (f LocalFlow) Name() string {
	return gjson.GetBytes(f.Content, "metadata.name").String()
}

// FileName returns the file name used for a flow
func FileName(name string) string {
	return sanitizer.Replace(name) + ".json"
}

var sanitizer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

var (
	_ FlowStore = (*FileStore)(nil)
	_ FlowStore = (*MemoryStore)(nil)
)
