// Package source fetches PDF bytes by reference: s3://bucket/key, http(s):// URLs and,
// when enabled, local files.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftrio/internal/config"
)

var (
	ErrTooLarge    = errors.New("source exceeds size limit")
	ErrUnsupported = errors.New("unsupported source reference")
)

// Fetcher resolves references to bytes. The S3 client is created on first use.
type Fetcher struct {
	// LocalFiles enables file:// references and bare paths. Off for the HTTP service.
	LocalFiles bool

	cfg  config.SourceConfig
	http *http.Client

	once  sync.Once
	s3    *s3.Client
	s3Err error
}

func New(cfg config.SourceConfig) *Fetcher {
	return &Fetcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Supported reports whether ref has a scheme this fetcher accepts.
func (f *Fetcher) Supported(ref string) bool {
	switch {
	case strings.HasPrefix(ref, "s3://"), strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return true
	default:
		return f.LocalFiles
	}
}

// Fetch downloads ref in full.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if !f.Supported(ref) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ref)
	}
	if f.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.FetchTimeout)
		defer cancel()
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	default:
		return f.fetchFile(strings.TrimPrefix(ref, "file://"))
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}
	if f.cfg.MaxBytes > 0 && resp.ContentLength > f.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.cfg.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (f *Fetcher) fetchFile(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if f.cfg.MaxBytes > 0 && st.Size() > f.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return os.ReadFile(path)
}

// splitS3 parses s3://bucket/key.
func splitS3(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

func (f *Fetcher) client(ctx context.Context) (*s3.Client, error) {
	f.once.Do(func() {
		var opts []func(*awscfg.LoadOptions) error
		if f.cfg.S3Region != "" {
			opts = append(opts, awscfg.WithRegion(f.cfg.S3Region))
		}
		if f.cfg.S3AccessKey != "" && f.cfg.S3SecretKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(f.cfg.S3AccessKey, f.cfg.S3SecretKey, ""),
			))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			f.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		f.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if f.cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return f.s3, f.s3Err
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := splitS3(ref)
	if err != nil {
		return nil, err
	}
	cli, err := f.client(ctx)
	if err != nil {
		return nil, err
	}

	head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 head %s: %w", ref, err)
	}
	size := aws.ToInt64(head.ContentLength)
	if f.cfg.MaxBytes > 0 && size > f.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	n, err := manager.NewDownloader(cli).Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %s: %w", ref, err)
	}
	if f.cfg.MaxBytes > 0 && n > f.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 pdf")
	return buf.Bytes(), nil
}
