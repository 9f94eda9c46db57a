package multipart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
)

// Boundary extracts the boundary token from a multipart Content-Type value.
func Boundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", ErrNotMultipart
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrNoBoundary
	}
	return boundary, nil
}

// Process streams a multipart body from r through a Parser.
// Read timeouts are retried until ctx is done; any other read error aborts.
// A negative contentLength reads until EOF without a length check.
func Process(ctx context.Context, r io.Reader, contentType string, contentLength int64, opts ...Option) error {
	boundary, err := Boundary(contentType)
	if err != nil {
		return err
	}

	if contentLength >= 0 {
		opts = append(opts, WithContentLength(contentLength))
	}
	p := New(boundary, opts...)

	buf := make([]byte, p.opts.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if contentLength >= 0 && p.Parsed() >= contentLength {
			break
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := p.Write(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if isTimeout(rerr) {
			continue
		}
		return fmt.Errorf("%w: %w", ErrRead, rerr)
	}

	return p.Close()
}

// ProcessBytes parses an in-memory multipart body.
func ProcessBytes(body []byte, contentType string, opts ...Option) error {
	boundary, err := Boundary(contentType)
	if err != nil {
		return err
	}

	opts = append(opts, WithContentLength(int64(len(body))))
	p := New(boundary, opts...)
	if _, err := p.Write(body); err != nil {
		return err
	}
	return p.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
