package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
)

// Compile-time check that S3Store implements Store.
var _ Store = (*S3Store)(nil)

// S3Config holds the configuration for S3-compatible blob storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for S3-compatible endpoints (e.g. Supabase storage)
	AccessKeyID     string // Optional: access key ID
	SecretAccessKey string // Optional: secret access key
	CDNBaseURL      string // Public base for published artifact URLs
	PurgeEndpoint   string // Optional: CDN purge API endpoint
}

// S3Store publishes artifacts to an S3-compatible bucket and fetches inputs
// over HTTP. Public URLs are served under a configurable CDN base.
type S3Store struct {
	client     *s3.Client
	httpClient *http.Client
	bucket     string
	region     string
	cdnBase    string
	purgeURL   string
}

// NewS3Store creates a new S3Store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	cdnBase := strings.TrimSuffix(cfg.CDNBaseURL, "/")
	if cdnBase == "" {
		cdnBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Store{
		client:     client,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		cdnBase:    cdnBase,
		purgeURL:   cfg.PurgeEndpoint,
	}, nil
}

// Fetch downloads a URL into memory, retrying transient failures with
// exponential backoff. The limit guards against oversized inputs.
func (s *S3Store) Fetch(ctx context.Context, url string, limit int64) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("blob: build request: %w", err))
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("blob: fetch %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("%w: %d fetching %s", ErrBadStatus, resp.StatusCode, url)
			// 4xx will not heal on retry; 429 and 5xx might.
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		if resp.ContentLength > limit {
			return backoff.Permanent(fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, limit))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return fmt.Errorf("blob: read body: %w", err)
		}
		if int64(len(data)) > limit {
			return backoff.Permanent(fmt.Errorf("%w: body over %d bytes", ErrTooLarge, limit))
		}
		body = data
		return nil
	}

	if err := backoff.Retry(operation, fetchBackoff(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// UploadFile uploads a local file and returns its public URL under the CDN base.
func (s *S3Store) UploadFile(ctx context.Context, key, path, contentType, cacheControl string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by the pipeline, not user input
	if err != nil {
		return "", fmt.Errorf("blob: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("blob: upload %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", s.cdnBase, key), nil
}

// Purge posts the URLs to the CDN purge endpoint. No endpoint configured
// means purging is a no-op.
func (s *S3Store) Purge(ctx context.Context, urls []string) error {
	if s.purgeURL == "" || len(urls) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return fmt.Errorf("blob: encode purge payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.purgeURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("blob: build purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("blob: purge: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d from purge endpoint", ErrBadStatus, resp.StatusCode)
	}
	return nil
}

// fetchBackoff builds the retry policy for input downloads: 3 attempts,
// base 2 s, cap 32 s, 25% jitter.
func fetchBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 32 * time.Second
	b.RandomizationFactor = 0.25
	return backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)
}
