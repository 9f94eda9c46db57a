package objectsink

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// Config holds S3-compatible storage configuration.
type Config struct {
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Endpoint is a custom endpoint URL for MinIO or other S3-compatible services.
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
	// PathStyle enables path-style URLs (required for MinIO).
	PathStyle bool `yaml:"path_style"`
	// MaxSize caps the bytes buffered per file. Zero means unlimited.
	MaxSize int64 `yaml:"max_size"`
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// Validate checks that the required fields are set.
func (c Config) Validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}

// putter is the subset of *s3.Client used by S3Sink.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink assembles each uploaded file in memory and stores it as one object
// when the last chunk arrives. Files are bounded by Config.MaxSize, which the
// caller should keep at or below the upload limit.
type S3Sink struct {
	client  putter
	cfg     Config
	pending map[string]*bytes.Buffer
	mu      sync.Mutex
}

// NewS3 creates an S3Sink from cfg.
func NewS3(cfg Config) (*S3Sink, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})

	return newS3Sink(client, cfg), nil
}

func newS3Sink(client putter, cfg Config) *S3Sink {
	return &S3Sink{
		client:  client,
		cfg:     cfg,
		pending: make(map[string]*bytes.Buffer),
	}
}

// Write implements Sink.
func (s *S3Sink) Write(ctx context.Context, filename string, offset int64, data []byte, last bool) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	buf, ok := s.pending[name]
	if !ok {
		if offset != 0 {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s starts at %d", ErrOutOfOrder, name, offset)
		}
		buf = new(bytes.Buffer)
		s.pending[name] = buf
	}
	if int64(buf.Len()) != offset {
		delete(s.pending, name)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s expected %d got %d", ErrOutOfOrder, name, buf.Len(), offset)
	}
	if s.cfg.MaxSize > 0 && int64(buf.Len()+len(data)) > s.cfg.MaxSize {
		delete(s.pending, name)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	buf.Write(data)
	if last {
		delete(s.pending, name)
	}
	s.mu.Unlock()

	if !last {
		return nil
	}
	return s.put(ctx, name, buf.Bytes())
}

// Abort implements Aborter.
func (s *S3Sink) Abort(filename string) {
	name, err := cleanName(filename)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
}

// Key returns the object key used for filename.
func (s *S3Sink) Key(filename string) string {
	name, err := cleanName(filename)
	if err != nil {
		return ""
	}
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}

func (s *S3Sink) put(ctx context.Context, name string, body []byte) error {
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.Key(name)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return wrapS3Error(err)
	}
	return nil
}

var (
	_ Sink    = (*S3Sink)(nil)
	_ Aborter = (*S3Sink)(nil)
)
