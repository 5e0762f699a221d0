// Package blobstore provides durable key-value storage of binary image data,
// keyed by item id. The structured item record and its image live in separate
// stores; deletes on the item path must also delete here so the two stay
// consistent by id.
package blobstore

import "context"

// Store is the synchronous storage primitive. Absence is not an error:
// Get returns (nil, "", nil) for a missing key, and Delete of a missing key
// is a no-op.
type Store interface {
	// Put overwrites or creates the blob for id.
	Put(ctx context.Context, id int64, mimeType string, data []byte) error
	// Get returns the blob and its media type, or (nil, "", nil) if absent.
	Get(ctx context.Context, id int64) (data []byte, mimeType string, err error)
	// Delete removes the blob for id. Deleting a non-existent key is not an error.
	Delete(ctx context.Context, id int64) error
}
