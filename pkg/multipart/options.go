package multipart

// Default limits, sized for constrained devices.
const (
	DefaultChunkSize     = 8 * 1024
	DefaultMaxUploadSize = 2 * 1024 * 1024
	DefaultMaxFieldSize  = 16 * 1024
	DefaultMaxHeaderLine = 1024
)

// FieldFunc receives a completed non-file field.
type FieldFunc func(name, value string)

// UploadFunc receives a chunk of a file field.
// offset is the position of data within the file. last is true exactly once
// per file field, on the final chunk (which may be empty).
type UploadFunc func(filename string, offset int64, data []byte, last bool) error

// FileFunc is called once a file field has been fully streamed to the sink.
type FileFunc func(name, filename, contentType string, size int64)

// Option configures a Parser.
type Option func(*options)

type options struct {
	onField       FieldFunc
	onUpload      UploadFunc
	onFile        FileFunc
	chunkSize     int
	maxUploadSize int64
	maxFieldSize  int
	maxHeaderLine int
	contentLength int64
}

func defaultOptions() *options {
	return &options{
		chunkSize:     DefaultChunkSize,
		maxUploadSize: DefaultMaxUploadSize,
		maxFieldSize:  DefaultMaxFieldSize,
		maxHeaderLine: DefaultMaxHeaderLine,
		contentLength: -1,
	}
}

// WithFieldFunc sets the callback for non-file fields.
func WithFieldFunc(fn FieldFunc) Option {
	return func(o *options) {
		o.onField = fn
	}
}

// WithUploadFunc sets the upload sink for file fields.
func WithUploadFunc(fn UploadFunc) Option {
	return func(o *options) {
		o.onUpload = fn
	}
}

// WithFileFunc sets the callback fired after a file field completes.
func WithFileFunc(fn FileFunc) Option {
	return func(o *options) {
		o.onFile = fn
	}
}

// WithChunkSize sets the size of the file transfer buffer.
// Default: 8 KiB.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithMaxUploadSize sets the maximum size of a single file field.
// Zero or negative disables the limit.
// Default: 2 MiB.
func WithMaxUploadSize(n int64) Option {
	return func(o *options) {
		o.maxUploadSize = n
	}
}

// WithMaxFieldSize sets the maximum size of a non-file field value.
// Default: 16 KiB.
func WithMaxFieldSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFieldSize = n
		}
	}
}

// WithMaxHeaderLine sets the maximum length of a part header line.
// Default: 1 KiB.
func WithMaxHeaderLine(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHeaderLine = n
		}
	}
}

// WithContentLength sets the declared body length.
// When set, the parser fails if the body is longer or shorter.
func WithContentLength(n int64) Option {
	return func(o *options) {
		o.contentLength = n
	}
}
