package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/usernameweb/acctdash/internal/fileutil"
)

// Destination stores a finished export file and returns where it went.
type Destination interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// DirDestination writes exports into a local directory. Names may contain
// slash-separated subdirectories; they cannot climb out of Dir.
type DirDestination struct {
	Dir string
}

func (d DirDestination) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	rel := path.Clean("/" + name)
	p := filepath.Join(d.Dir, filepath.FromSlash(rel))
	if err := fileutil.MkdirPrivate(filepath.Dir(p)); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := fileutil.WritePrivate(p, data); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return p, nil
}

// RunDestination files every run of a scheduled export under
// <job>/<UTC run time>/ in Dest, so runs and jobs never share a path.
type RunDestination struct {
	Dest Destination
	Job  string
	Now  func() time.Time
}

const runStampLayout = "2006-01-02T15-04-05.000Z"

func (d RunDestination) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	dir := path.Join(pathSegment(d.Job), now().UTC().Format(runStampLayout))
	return d.Dest.Put(ctx, path.Join(dir, path.Base(name)), contentType, data)
}

// pathSegment turns a job name into a single safe path element.
func pathSegment(s string) string {
	seg := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, strings.TrimSpace(s))
	seg = strings.Trim(seg, ".")
	if seg == "" {
		return "export"
	}
	return seg
}

// S3Config configures an S3 (or S3-compatible) export bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Prefix    string
	Endpoint  string // optional, e.g. a MinIO URL
	AccessKey string // optional; the default credential chain is used when empty
	SecretKey string
}

// putObjectAPI is the subset of the S3 client used here.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads exports to a bucket under prefix/YYYY/MM/DD/.
type S3Destination struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Destination builds an S3 client from cfg.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

// Key returns the object key used for name.
func (d *S3Destination) Key(name string) string {
	t := d.now()
	return path.Join(d.prefix, fmt.Sprintf("%d/%02d/%02d", t.Year(), t.Month(), t.Day()), name)
}

func (d *S3Destination) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := d.Key(name)
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", d.bucket, key, err)
	}
	return "s3://" + d.bucket + "/" + key, nil
}
