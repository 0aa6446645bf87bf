// Package objectstore implements drive.ObjectStore on memory, the local
// filesystem and S3, with optional at-rest encryption.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when no blob exists at the path.
var ErrObjectNotFound = errors.New("object not found")

// Verifier is implemented by stores whose URLs are served by the minix
// server itself rather than by the storage backend.
type Verifier interface {
	// Verify checks the expires and sig query values of an object URL.
	Verify(path, expires, sig string) error
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readerWithContext stops a copy once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}
