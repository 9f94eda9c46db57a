// Package multipart implements a streaming multipart/form-data parser that
// never buffers a whole file in memory.
//
// Bytes are pushed through a byte-level state machine. Non-file fields are
// accumulated up to a size limit and reported once their closing delimiter is
// confirmed. File fields are streamed to an UploadFunc in fixed-size chunks;
// the sink sees each chunk with its offset and a final call with last=true.
//
// Basic usage:
//
//	err := multipart.Process(ctx, r.Body, r.Header.Get("Content-Type"), r.ContentLength,
//		multipart.WithFieldFunc(func(name, value string) {
//			params[name] = value
//		}),
//		multipart.WithUploadFunc(func(filename string, offset int64, data []byte, last bool) error {
//			_, err := f.WriteAt(data, offset)
//			return err
//		}),
//	)
//
// The parser can also be driven directly with New, Write and Close when the
// body arrives in pieces from elsewhere.
//
// Errors are reported through sentinels (ErrMalformed, ErrTooLarge,
// ErrLengthMismatch, ErrUnexpectedEOF, ErrSink, ErrRead) and should be
// checked with errors.Is.
package multipart
