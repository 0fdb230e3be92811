// Package storage dereferences artifact refs against the object storage
// collaborator. Refs are opaque locators recorded by the interview engine;
// this package parses them just enough to address the store and streams
// the bytes through, never inspecting or validating content.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a ref points at nothing.
var ErrNotFound = errors.New("object not found")

// Object is a readable artifact with its storage-reported content type
// (may be empty; callers infer a fallback).
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStore fetches artifact bytes by ref.
type ObjectStore interface {
	Get(ctx context.Context, ref string) (*Object, error)
}

// ParseRef splits an artifact ref into bucket and key. Supported shapes:
//
//	s3://bucket/path/to/object
//	gs://bucket/path/to/object
//	http(s)://endpoint/bucket/path/to/object
//
// The scheme is not checked against the configured backend; the engine
// records whatever locator its storage hands out and the proxy serves it
// from the store it is wired to.
func ParseRef(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("malformed artifact ref: %w", err)
	}

	switch u.Scheme {
	case "s3", "gs":
		bucket = u.Host
		key = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		// Path-style endpoint URL: first path segment is the bucket.
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 {
			bucket, key = parts[0], parts[1]
		}
	default:
		return "", "", fmt.Errorf("unsupported artifact ref scheme %q", u.Scheme)
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("artifact ref %q missing bucket or key", ref)
	}

	return bucket, key, nil
}
