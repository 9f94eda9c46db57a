package multipart_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	stdmultipart "mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt/pkg/multipart"
)

type chunk struct {
	filename string
	offset   int64
	data     []byte
	last     bool
}

type recorder struct {
	fields map[string]string
	chunks []chunk
	files  map[string]int64
}

func newRecorder() *recorder {
	return &recorder{
		fields: make(map[string]string),
		files:  make(map[string]int64),
	}
}

func (r *recorder) options() []multipart.Option {
	return []multipart.Option{
		multipart.WithFieldFunc(func(name, value string) {
			r.fields[name] = value
		}),
		multipart.WithUploadFunc(func(filename string, offset int64, data []byte, last bool) error {
			r.chunks = append(r.chunks, chunk{
				filename: filename,
				offset:   offset,
				data:     bytes.Clone(data),
				last:     last,
			})
			return nil
		}),
		multipart.WithFileFunc(func(name, filename, contentType string, size int64) {
			r.files[name] = size
		}),
	}
}

func (r *recorder) file(filename string) []byte {
	var out []byte
	for _, c := range r.chunks {
		if c.filename == filename {
			out = append(out, c.data...)
		}
	}
	return out
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func encodeForm(t *testing.T, fields map[string]string, files map[string][]byte) ([]byte, string) {
	t.Helper()

	var body bytes.Buffer
	w := stdmultipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for filename, content := range files {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body.Bytes(), w.FormDataContentType()
}

func TestProcessBytes(t *testing.T) {
	t.Parallel()

	t.Run("fields and file", func(t *testing.T) {
		t.Parallel()

		content := pattern(10000)
		body, contentType := encodeForm(t,
			map[string]string{"param1": "value1", "param2": "value2"},
			map[string][]byte{"data.bin": content},
		)

		rec := newRecorder()
		err := multipart.ProcessBytes(body, contentType, rec.options()...)
		require.NoError(t, err)

		require.Equal(t, "value1", rec.fields["param1"])
		require.Equal(t, "value2", rec.fields["param2"])
		require.Equal(t, content, rec.file("data.bin"))
		require.Equal(t, int64(10000), rec.files["file"])
	})

	t.Run("not multipart", func(t *testing.T) {
		t.Parallel()

		err := multipart.ProcessBytes([]byte("a=b"), "application/x-www-form-urlencoded")
		require.ErrorIs(t, err, multipart.ErrNotMultipart)
	})
}

func TestParserByteAtATime(t *testing.T) {
	t.Parallel()

	content := pattern(10000)
	body, contentType := encodeForm(t,
		map[string]string{"param1": "value1", "param2": "value2"},
		map[string][]byte{"data.bin": content},
	)
	boundary, err := multipart.Boundary(contentType)
	require.NoError(t, err)

	rec := newRecorder()
	opts := append(rec.options(), multipart.WithContentLength(int64(len(body))))
	p := multipart.New(boundary, opts...)
	for i := range body {
		_, err := p.Write(body[i : i+1])
		require.NoError(t, err)
	}
	require.NoError(t, p.Close())
	require.Equal(t, multipart.StateFinished, p.State())

	require.Equal(t, "value1", rec.fields["param1"])
	require.Equal(t, "value2", rec.fields["param2"])
	require.Equal(t, content, rec.file("data.bin"))

	require.Len(t, rec.chunks, 2)
	require.Equal(t, int64(0), rec.chunks[0].offset)
	require.Len(t, rec.chunks[0].data, multipart.DefaultChunkSize)
	require.False(t, rec.chunks[0].last)
	require.Equal(t, int64(multipart.DefaultChunkSize), rec.chunks[1].offset)
	require.Len(t, rec.chunks[1].data, 10000-multipart.DefaultChunkSize)
	require.True(t, rec.chunks[1].last)
}

func TestParserLastChunkExactlyOnce(t *testing.T) {
	t.Parallel()

	// File size is an exact multiple of the chunk size, so the final call
	// carries no data.
	content := pattern(64)
	body, contentType := encodeForm(t, nil, map[string][]byte{"a.bin": content})

	rec := newRecorder()
	opts := append(rec.options(), multipart.WithChunkSize(16))
	require.NoError(t, multipart.ProcessBytes(body, contentType, opts...))

	var lasts int
	for _, c := range rec.chunks {
		if c.last {
			lasts++
		}
	}
	require.Equal(t, 1, lasts)
	require.True(t, rec.chunks[len(rec.chunks)-1].last)
	require.Empty(t, rec.chunks[len(rec.chunks)-1].data)
	require.Equal(t, int64(64), rec.chunks[len(rec.chunks)-1].offset)
	require.Equal(t, content, rec.file("a.bin"))
}

func TestParserDelimiterLookalikes(t *testing.T) {
	t.Parallel()

	const boundary = "XyZ"
	value := "a\r\nb\r\n-c\r\n--Xy\r\n--XyZq\r\n--XyZ\rq\r\n--XyZ-q\r\r\n--end\r"

	body := "--XyZ\r\n" +
		"Content-Disposition: form-data; name=\"field\"\r\n\r\n" +
		value + "\r\n--XyZ\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"f.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		value + "\r\n--XyZ--\r\n"

	for _, step := range []int{1, 3, 7, len(body)} {
		rec := newRecorder()
		p := multipart.New(boundary, rec.options()...)
		for i := 0; i < len(body); i += step {
			end := min(i+step, len(body))
			_, err := p.Write([]byte(body[i:end]))
			require.NoError(t, err)
		}
		require.NoError(t, p.Close())
		require.Equal(t, value, rec.fields["field"], "step %d", step)
		require.Equal(t, value, string(rec.file("f.txt")), "step %d", step)
	}
}

func TestParserHeaders(t *testing.T) {
	t.Parallel()

	body := "--b\r\n" +
		"content-disposition: form-data; filename=\"we;ird \\\"name\\\".txt\"; NAME=upload\r\n" +
		"\r\n" +
		"hello\r\n--b--"

	rec := newRecorder()
	require.NoError(t, multipart.ProcessBytes([]byte(body), "multipart/form-data; boundary=b", rec.options()...))
	require.Equal(t, "hello", string(rec.file(`we;ird "name".txt`)))
	require.Equal(t, int64(5), rec.files["upload"])
}

func TestParserEmptyFilePart(t *testing.T) {
	t.Parallel()

	body, contentType := encodeForm(t,
		map[string]string{"k": "v"},
		map[string][]byte{"": nil},
	)

	rec := newRecorder()
	require.NoError(t, multipart.ProcessBytes(body, contentType, rec.options()...))
	require.Equal(t, "v", rec.fields["k"])
	require.Empty(t, rec.chunks)
	require.Empty(t, rec.files)
}

func TestParserErrors(t *testing.T) {
	t.Parallel()

	t.Run("malformed opening", func(t *testing.T) {
		t.Parallel()

		p := multipart.New("b")
		_, err := p.Write([]byte("-x"))
		require.ErrorIs(t, err, multipart.ErrMalformed)
		require.Equal(t, multipart.StateParseError, p.State())

		// Sticky.
		_, err = p.Write([]byte("--b\r\n"))
		require.ErrorIs(t, err, multipart.ErrMalformed)
		require.ErrorIs(t, p.Close(), multipart.ErrMalformed)
	})

	t.Run("truncated body", func(t *testing.T) {
		t.Parallel()

		body := "--b\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nvalue\r\n--b"
		err := multipart.ProcessBytes([]byte(body), "multipart/form-data; boundary=b")
		require.ErrorIs(t, err, multipart.ErrUnexpectedEOF)
	})

	t.Run("declared length too long", func(t *testing.T) {
		t.Parallel()

		body, contentType := encodeForm(t, map[string]string{"a": "b"}, nil)
		boundary, err := multipart.Boundary(contentType)
		require.NoError(t, err)

		p := multipart.New(boundary, multipart.WithContentLength(int64(len(body)+5)))
		_, err = p.Write(body)
		require.NoError(t, err)
		require.ErrorIs(t, p.Close(), multipart.ErrLengthMismatch)
	})

	t.Run("declared length too short", func(t *testing.T) {
		t.Parallel()

		body, contentType := encodeForm(t, map[string]string{"a": "b"}, nil)
		boundary, err := multipart.Boundary(contentType)
		require.NoError(t, err)

		p := multipart.New(boundary, multipart.WithContentLength(int64(len(body)-5)))
		_, err = p.Write(body)
		require.ErrorIs(t, err, multipart.ErrLengthMismatch)
	})

	t.Run("file too large", func(t *testing.T) {
		t.Parallel()

		body, contentType := encodeForm(t, nil, map[string][]byte{"big.bin": pattern(100)})
		err := multipart.ProcessBytes(body, contentType, multipart.WithMaxUploadSize(10))
		require.ErrorIs(t, err, multipart.ErrTooLarge)
	})

	t.Run("field too large", func(t *testing.T) {
		t.Parallel()

		body, contentType := encodeForm(t, map[string]string{"a": strings.Repeat("x", 100)}, nil)
		err := multipart.ProcessBytes(body, contentType, multipart.WithMaxFieldSize(10))
		require.ErrorIs(t, err, multipart.ErrTooLarge)
	})

	t.Run("sink failure", func(t *testing.T) {
		t.Parallel()

		sinkErr := errors.New("disk full")
		body, contentType := encodeForm(t, nil, map[string][]byte{"a.bin": pattern(100)})
		err := multipart.ProcessBytes(body, contentType,
			multipart.WithUploadFunc(func(string, int64, []byte, bool) error {
				return sinkErr
			}),
		)
		require.ErrorIs(t, err, multipart.ErrSink)
		require.ErrorIs(t, err, sinkErr)
	})
}

func TestBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		want        string
		wantErr     error
	}{
		{"plain", "multipart/form-data; boundary=abc", "abc", nil},
		{"quoted", `multipart/form-data; boundary="a b"`, "a b", nil},
		{"mixed", "multipart/mixed; charset=utf-8; boundary=xyz", "xyz", nil},
		{"missing", "multipart/form-data", "", multipart.ErrNoBoundary},
		{"not multipart", "text/plain; boundary=abc", "", multipart.ErrNotMultipart},
		{"empty", "", "", multipart.ErrNotMultipart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := multipart.Boundary(tt.contentType)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyReader returns a timeout before every read.
type flakyReader struct {
	r       io.Reader
	timeout bool
}

func (f *flakyReader) Read(p []byte) (int, error) {
	f.timeout = !f.timeout
	if f.timeout {
		return 0, timeoutError{}
	}
	return f.r.Read(p)
}

func TestProcess(t *testing.T) {
	t.Parallel()

	t.Run("retries timeouts", func(t *testing.T) {
		t.Parallel()

		content := pattern(3000)
		body, contentType := encodeForm(t, map[string]string{"a": "b"}, map[string][]byte{"f": content})

		rec := newRecorder()
		r := &flakyReader{r: bytes.NewReader(body)}
		err := multipart.Process(context.Background(), r, contentType, int64(len(body)),
			append(rec.options(), multipart.WithChunkSize(512))...)
		require.NoError(t, err)
		require.Equal(t, "b", rec.fields["a"])
		require.Equal(t, content, rec.file("f"))
	})

	t.Run("read error", func(t *testing.T) {
		t.Parallel()

		readErr := errors.New("connection reset")
		r := io.MultiReader(strings.NewReader("--b\r\n"), &errReader{err: readErr})
		err := multipart.Process(context.Background(), r, "multipart/form-data; boundary=b", -1)
		require.ErrorIs(t, err, multipart.ErrRead)
		require.ErrorIs(t, err, readErr)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := multipart.Process(ctx, strings.NewReader(""), "multipart/form-data; boundary=b", -1)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown length", func(t *testing.T) {
		t.Parallel()

		body, contentType := encodeForm(t, map[string]string{"x": "y"}, nil)
		rec := newRecorder()
		err := multipart.Process(context.Background(), bytes.NewReader(body), contentType, -1, rec.options()...)
		require.NoError(t, err)
		require.Equal(t, "y", rec.fields["x"])
	})
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }
