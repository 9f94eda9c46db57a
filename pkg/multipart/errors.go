package multipart

import "errors"

// Sentinel errors for multipart parsing.
var (
	// ErrNotMultipart is returned when the Content-Type is not a multipart type.
	ErrNotMultipart = errors.New("multipart: content type is not multipart")

	// ErrNoBoundary is returned when the Content-Type carries no boundary parameter.
	ErrNoBoundary = errors.New("multipart: no boundary found")

	// ErrMalformed is returned when the body does not start with the expected boundary line.
	ErrMalformed = errors.New("multipart: malformed body")

	// ErrUnexpectedEOF is returned when the body ends before the closing boundary.
	ErrUnexpectedEOF = errors.New("multipart: unexpected end of body")

	// ErrLengthMismatch is returned when the parsed byte count disagrees with the declared length.
	ErrLengthMismatch = errors.New("multipart: parsed length does not match content length")

	// ErrTooLarge is returned when a field, header line or file exceeds its configured limit.
	ErrTooLarge = errors.New("multipart: size limit exceeded")

	// ErrSink is returned when the upload sink rejects a chunk.
	ErrSink = errors.New("multipart: upload sink failed")

	// ErrRead is returned when the underlying byte source fails with a non-timeout error.
	ErrRead = errors.New("multipart: read failed")
)
