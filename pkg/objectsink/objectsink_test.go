package objectsink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
	mu      sync.Mutex
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("assembles chunks into one object", func(t *testing.T) {
		t.Parallel()

		p := newFakePutter()
		sink := newS3Sink(p, Config{Bucket: "b", Prefix: "uploads"})

		require.NoError(t, sink.Write(ctx, "report.json", 0, []byte(`{"a":`), false))
		require.NoError(t, sink.Write(ctx, "report.json", 5, []byte(`1}`), false))
		require.Empty(t, p.objects)
		require.NoError(t, sink.Write(ctx, "report.json", 7, nil, true))

		require.Equal(t, `{"a":1}`, string(p.objects["uploads/report.json"]))
		require.Equal(t, "application/json", p.types["uploads/report.json"])
	})

	t.Run("strips directories from names", func(t *testing.T) {
		t.Parallel()

		p := newFakePutter()
		sink := newS3Sink(p, Config{Bucket: "b"})

		require.NoError(t, sink.Write(ctx, `..\..\etc/passwd`, 0, []byte("x"), true))
		require.Contains(t, p.objects, "passwd")
		require.ErrorIs(t, sink.Write(ctx, "..", 0, nil, true), ErrInvalidName)
	})

	t.Run("rejects out of order chunks", func(t *testing.T) {
		t.Parallel()

		sink := newS3Sink(newFakePutter(), Config{Bucket: "b"})

		require.ErrorIs(t, sink.Write(ctx, "a.bin", 4, []byte("x"), false), ErrOutOfOrder)
		require.NoError(t, sink.Write(ctx, "a.bin", 0, []byte("abcd"), false))
		require.ErrorIs(t, sink.Write(ctx, "a.bin", 2, []byte("x"), false), ErrOutOfOrder)
	})

	t.Run("enforces max size", func(t *testing.T) {
		t.Parallel()

		p := newFakePutter()
		sink := newS3Sink(p, Config{Bucket: "b", MaxSize: 4})

		require.NoError(t, sink.Write(ctx, "a.bin", 0, []byte("abc"), false))
		require.ErrorIs(t, sink.Write(ctx, "a.bin", 3, []byte("de"), true), ErrTooLarge)
		require.Empty(t, p.objects)
	})

	t.Run("abort drops pending data", func(t *testing.T) {
		t.Parallel()

		sink := newS3Sink(newFakePutter(), Config{Bucket: "b"})
		require.NoError(t, sink.Write(ctx, "a.bin", 0, []byte("abc"), false))
		sink.Abort("a.bin")
		require.NoError(t, sink.Write(ctx, "a.bin", 0, []byte("new"), true))
	})

	t.Run("maps api errors", func(t *testing.T) {
		t.Parallel()

		p := newFakePutter()
		p.err = &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
		sink := newS3Sink(p, Config{Bucket: "b"})
		require.ErrorIs(t, sink.Write(ctx, "a.bin", 0, []byte("x"), true), ErrAccessDenied)

		p.err = errors.New("connection reset")
		require.ErrorIs(t, sink.Write(ctx, "a.bin", 0, []byte("x"), true), ErrUploadFailed)
	})
}

func TestNewS3_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewS3(Config{Bucket: "b"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	sink, err := NewS3(Config{Bucket: "b", AccessKey: "a", SecretKey: "s", Endpoint: "http://localhost:9000", PathStyle: true})
	require.NoError(t, err)
	require.Equal(t, DefaultRegion, sink.cfg.Region)
}

func TestFileSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("writes chunks at offsets", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sink, err := NewFileSink(dir)
		require.NoError(t, err)

		require.NoError(t, sink.Write(ctx, "fw.bin", 0, []byte("hello "), false))
		require.NoError(t, sink.Write(ctx, "fw.bin", 6, []byte("world"), false))
		require.NoError(t, sink.Write(ctx, "fw.bin", 11, nil, true))

		data, err := os.ReadFile(filepath.Join(dir, "fw.bin"))
		require.NoError(t, err)
		require.Equal(t, "hello world", string(data))
		require.Equal(t, filepath.Join(dir, "fw.bin"), sink.Path("../fw.bin"))
	})

	t.Run("abort removes partial file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sink, err := NewFileSink(dir)
		require.NoError(t, err)

		require.NoError(t, sink.Write(ctx, "part.bin", 0, []byte("abc"), false))
		sink.Abort("part.bin")

		_, err = os.Stat(filepath.Join(dir, "part.bin"))
		require.True(t, os.IsNotExist(err))
		require.NoError(t, sink.Close())
	})

	t.Run("first chunk must start at zero", func(t *testing.T) {
		t.Parallel()

		sink, err := NewFileSink(t.TempDir())
		require.NoError(t, err)
		require.ErrorIs(t, sink.Write(ctx, "x.bin", 10, []byte("a"), false), ErrOutOfOrder)
	})

	t.Run("empty dir rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewFileSink("")
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
