package objectsink

import (
	"context"
	"path"
	"strings"
)

// Sink receives the chunks of one or more uploaded files.
// Chunks of the same file arrive in offset order; last is true exactly once,
// on the final chunk, which may be empty.
type Sink interface {
	Write(ctx context.Context, filename string, offset int64, data []byte, last bool) error
}

// Aborter is implemented by sinks that can discard a partially received file.
type Aborter interface {
	Abort(filename string)
}

// cleanName reduces an uploaded file name to its final element and rejects
// names that would escape the destination.
func cleanName(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	return name, nil
}
