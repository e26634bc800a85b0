package components

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// FetchInfo describes a fetched object for logging.
type FetchInfo struct {
	Status        string
	ContentType   string
	ContentLength int64
	Headers       map[string]string
}

// Fetcher retrieves the dataset archive named by a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (io.ReadCloser, FetchInfo, error)
}

// HTTPFetcher fetches http:// and https:// sources.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch issues a GET and fails on any non-2xx status.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, FetchInfo, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, FetchInfo{}, errors.Wrapf(err, "invalid source URL %s", source)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, FetchInfo{}, errors.Wrapf(err, "failed to fetch %s", source)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, FetchInfo{}, errors.Newf("failed to fetch %s: %s", source, resp.Status)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.Body, FetchInfo{
		Status:        resp.Status,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Headers:       headers,
	}, nil
}

// S3GetObjectAPI is the subset of the S3 client used for downloads.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key sources. When API is nil a client is built
// from the default AWS configuration chain on first use.
type S3Fetcher struct {
	API    S3GetObjectAPI
	Region string
}

// Fetch downloads the object named by source.
func (f *S3Fetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, FetchInfo, error) {
	bucket, key, err := parseS3URI(source)
	if err != nil {
		return nil, FetchInfo{}, err
	}

	if f.API == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, FetchInfo{}, errors.Wrap(err, "failed to load AWS configuration")
		}
		if f.Region != "" {
			cfg.Region = f.Region
		} else if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
		f.API = s3.NewFromConfig(cfg)
	}

	out, err := f.API.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, FetchInfo{}, errors.Wrapf(err, "failed to get %s", source)
	}

	info := FetchInfo{
		Status:      "200 OK",
		ContentType: aws.ToString(out.ContentType),
		Headers:     map[string]string{"ETag": aws.ToString(out.ETag)},
	}
	if out.ContentLength != nil {
		info.ContentLength = *out.ContentLength
	}
	if out.LastModified != nil {
		info.Headers["Last-Modified"] = out.LastModified.UTC().Format(http.TimeFormat)
	}
	return out.Body, info, nil
}

func parseS3URI(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid S3 URI %s", source)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", errors.Newf("invalid S3 URI %s: expected s3://bucket/key", source)
	}
	return u.Host, key, nil
}

// SchemeFetcher routes by URI scheme: s3:// to S3, everything else to HTTP.
type SchemeFetcher struct {
	HTTP Fetcher
	S3   Fetcher
}

// DefaultFetcher returns a SchemeFetcher with stock HTTP and S3 fetchers.
func DefaultFetcher() *SchemeFetcher {
	return &SchemeFetcher{HTTP: &HTTPFetcher{}, S3: &S3Fetcher{}}
}

// Fetch implements Fetcher.
func (f *SchemeFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, FetchInfo, error) {
	switch {
	case strings.HasPrefix(source, "s3://"):
		return f.S3.Fetch(ctx, source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.HTTP.Fetch(ctx, source)
	default:
		return nil, FetchInfo{}, errors.NewValueError("Fetch", fmt.Sprintf("unsupported source scheme in %q", source))
	}
}
