// Package store defines the remote document store contract consumed by the
// sync engine. Two backends implement it: a Drive-style HTTP API (store/drive)
// and S3 (store/s3doc). The engine only ever sees this interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FileInfo identifies one remote document.
type FileInfo struct {
	ID   string
	Name string
}

// Metadata is the result of a metadata read. VersionTag is the store's opaque
// revision token (ETag-equivalent); it may be empty because stores are allowed
// to omit versioning headers.
type Metadata struct {
	ID         string
	Name       string
	VersionTag string
}

// DocumentStore is a thin typed wrapper over the remote API's file
// operations. It carries no business logic; every error it returns is either
// a transport error or a StatusError carrying the remote HTTP status.
type DocumentStore interface {
	// List returns the documents whose name equals nameEquals, within the
	// app-private space.
	List(ctx context.Context, nameEquals string) ([]FileInfo, error)

	// GetMetadata reads the document's metadata, including its current
	// version tag when the store provides one.
	GetMetadata(ctx context.Context, id string) (Metadata, error)

	// Download returns the raw document bytes.
	Download(ctx context.Context, id string) ([]byte, error)

	// Create stores a new document and returns its store-assigned identity.
	Create(ctx context.Context, name string, media []byte) (FileInfo, error)

	// Update overwrites the document. A non-empty ifMatch makes the write
	// conditional on the version tag; an empty ifMatch is an unconditional
	// last-write-wins overwrite. A rejected precondition surfaces as a
	// StatusError with code 412.
	Update(ctx context.Context, id, ifMatch, name string, media []byte) (FileInfo, error)
}

// StatusError is a remote operation rejected with an HTTP status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("store: %s returned status %d", e.Op, e.Code)
}

// IsPreconditionFailed reports whether err is a version-tag mismatch — the
// one retryable write failure.
func IsPreconditionFailed(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusPreconditionFailed
}

// IsNotFound reports whether err is a missing-document failure.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
