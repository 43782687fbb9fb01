// Package datasource opens CSV sources by location: local paths, file://,
// http(s):// and s3:// URLs.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrMissingSource marks a source that does not exist. Callers test it with
// errors.Is; the wrapped error carries the location.
var ErrMissingSource = errors.New("source not found")

type scheme string

const (
	schemeLocal scheme = "local"
	schemeFile  scheme = "file"
	schemeHTTP  scheme = "http"
	schemeHTTPS scheme = "https"
	schemeS3    scheme = "s3"
)

func detectScheme(loc string) scheme {
	lower := strings.ToLower(loc)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return schemeS3
	case strings.HasPrefix(lower, "https://"):
		return schemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return schemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return schemeFile
	default:
		return schemeLocal
	}
}

// S3Options configures the S3 client. Empty fields fall back to the AWS
// default chain (environment, shared config, instance role).
type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // S3-compatible endpoint, e.g. MinIO; enables path-style
}

// S3OptionsFromEnv reads FORQLOZ_S3_REGION, FORQLOZ_S3_ACCESS_KEY,
// FORQLOZ_S3_SECRET_KEY and FORQLOZ_S3_ENDPOINT.
func S3OptionsFromEnv() S3Options {
	return S3Options{
		Region:    os.Getenv("FORQLOZ_S3_REGION"),
		AccessKey: os.Getenv("FORQLOZ_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("FORQLOZ_S3_SECRET_KEY"),
		Endpoint:  os.Getenv("FORQLOZ_S3_ENDPOINT"),
	}
}

// Opener opens sources. The zero value works for local and HTTP sources
// and builds an S3 client on first use.
type Opener struct {
	S3         S3Options
	HTTPClient *http.Client

	s3client *s3.Client
}

// Open returns a reader for loc. A source that does not exist yields an
// error wrapping ErrMissingSource.
func (o *Opener) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	switch detectScheme(loc) {
	case schemeLocal:
		return openLocal(loc)
	case schemeFile:
		return openLocal(strings.TrimPrefix(loc, "file://"))
	case schemeHTTP, schemeHTTPS:
		return o.openHTTP(ctx, loc)
	case schemeS3:
		return o.openS3(ctx, loc)
	default:
		return nil, fmt.Errorf("unsupported source location: %s", loc)
	}
}

func openLocal(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSource, p)
		}
		return nil, err
	}
	return f, nil
}

func (o *Opener) openHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrMissingSource, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// parseS3URL parses s3://bucket/key into bucket and key parts.
func parseS3URL(url string) (bucket, key string, err error) {
	rest := url[len("s3://"):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	return parts[0], parts[1], nil
}

func (o *Opener) client(ctx context.Context) (*s3.Client, error) {
	if o.s3client != nil {
		return o.s3client, nil
	}

	var opts []func(*config.LoadOptions) error
	if o.S3.Region != "" {
		opts = append(opts, config.WithRegion(o.S3.Region))
	}
	if o.S3.AccessKey != "" && o.S3.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.S3.AccessKey, o.S3.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if o.S3.Endpoint != "" {
		clientOpts = append(clientOpts, func(so *s3.Options) {
			so.BaseEndpoint = aws.String(o.S3.Endpoint)
			so.UsePathStyle = true
		})
	}
	o.s3client = s3.NewFromConfig(awsCfg, clientOpts...)
	return o.s3client, nil
}

func (o *Opener) openS3(ctx context.Context, url string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	client, err := o.client(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSource, url)
		}
		return nil, fmt.Errorf("get S3 object %s: %w", url, err)
	}
	return resp.Body, nil
}

// Resolve places a table path relative to the data directory. Absolute
// paths and URLs are returned unchanged. URL directories are joined with
// forward slashes.
func Resolve(dir, p string) string {
	if detectScheme(p) != schemeLocal || filepath.IsAbs(p) || dir == "" {
		return p
	}
	switch detectScheme(dir) {
	case schemeLocal:
		return filepath.Join(dir, p)
	case schemeFile:
		return "file://" + filepath.Join(strings.TrimPrefix(dir, "file://"), p)
	default:
		return strings.TrimRight(dir, "/") + "/" + path.Clean(filepath.ToSlash(p))
	}
}
