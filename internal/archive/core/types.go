// Package core defines the object storage contract shared by the report
// archive and its backends.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	// DriverFilesystem stores objects under a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores objects in an S3 or MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps objects in process memory.
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string // flat user metadata, kept small
}

// SignedURLOptions configures URL pre-signing.
type SignedURLOptions struct {
	Expiry time.Duration // default 15m
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the write-once object store behind the report archive. Objects
// are never overwritten: Put fails with ErrExists when the key is taken.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// List returns objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key already holds an object.
	ErrExists = errors.New("archive: object already exists")
	// ErrNotFound is returned when no object is stored under a key.
	ErrNotFound = errors.New("archive: object not found")
	// ErrUnsupported is returned when a backend lacks an optional capability.
	ErrUnsupported = errors.New("archive: unsupported operation")
)
