package internal

// Default request limits, sized for constrained devices.
const (
	DefaultMaxRequestBodySize = 16 * 1024
	DefaultMaxUploadSize      = 2 * 1024 * 1024
	DefaultChunkSize          = 8 * 1024
	DefaultStreamChunkSize    = 1024
)

// Limits bounds how much of a request is read and how it is chunked.
type Limits struct {
	// MaxRequestBodySize caps buffered (non-upload) bodies.
	MaxRequestBodySize int64

	// MaxUploadSize caps a single uploaded file.
	MaxUploadSize int64

	// ChunkSize is the read buffer for uploads and file responses.
	ChunkSize int

	// StreamChunkSize is the buffer for streamed responses.
	StreamChunkSize int
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestBodySize: DefaultMaxRequestBodySize,
		MaxUploadSize:      DefaultMaxUploadSize,
		ChunkSize:          DefaultChunkSize,
		StreamChunkSize:    DefaultStreamChunkSize,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRequestBodySize <= 0 {
		l.MaxRequestBodySize = d.MaxRequestBodySize
	}
	if l.MaxUploadSize <= 0 {
		l.MaxUploadSize = d.MaxUploadSize
	}
	if l.ChunkSize <= 0 {
		l.ChunkSize = d.ChunkSize
	}
	if l.StreamChunkSize <= 0 {
		l.StreamChunkSize = d.StreamChunkSize
	}
	return l
}
