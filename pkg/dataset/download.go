package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

// DefaultMirror serves the gzipped IDX files.
const DefaultMirror = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// DownloadOptions configures Download.
type DownloadOptions struct {
	// Root is the directory the files are written to
	Root string
	// Split selects which pair of files to fetch
	Split Split
	// Mirror is the base URL; DefaultMirror when empty
	Mirror string
	// RetryMax bounds retries per file; 4 when zero
	RetryMax int
	// Timeout bounds each HTTP attempt; 2 minutes when zero
	Timeout time.Duration
	Logger  *zap.Logger
}

// Download fetches the gzipped IDX pair for a split into Root, skipping
// files that already exist in any supported compression. Files are written
// to a temporary name and renamed on success. It returns the paths written.
func Download(ctx context.Context, opts DownloadOptions) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mirror := opts.Mirror
	if mirror == "" {
		mirror = DefaultMirror
	}
	if !strings.HasSuffix(mirror, "/") {
		mirror += "/"
	}
	if opts.Split == "" {
		opts.Split = Train
	}

	if err := os.MkdirAll(opts.Root, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create dataset directory").
			WithDetail("root", opts.Root)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	if client.RetryMax == 0 {
		client.RetryMax = 4
	}
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	if client.HTTPClient.Timeout == 0 {
		client.HTTPClient.Timeout = 2 * time.Minute
	}
	client.Logger = retryLogger{logger}

	var written []string
	for _, base := range []string{opts.Split.ImagesFile(), opts.Split.LabelsFile()} {
		if existing, err := locate(opts.Root, base); err == nil {
			logger.Info("dataset file present, skipping download", zap.String("path", existing))
			continue
		}

		name := base + ".gz"
		dest := filepath.Join(opts.Root, name)
		if err := fetch(ctx, client, mirror+name, dest); err != nil {
			return written, err
		}
		logger.Info("downloaded dataset file", zap.String("path", dest))
		written = append(written, dest)
	}
	return written, nil
}

func fetch(ctx context.Context, client *retryablehttp.Client, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid download url").WithDetail("url", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "download failed").WithDetail("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrorTypeConnection, "download returned %s", resp.Status).WithDetail("url", url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "download interrupted").WithDetail("url", url)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush download")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to move download into place").WithDetail("path", dest)
	}
	return nil
}

// retryLogger adapts zap to retryablehttp's leveled logger.
type retryLogger struct {
	l *zap.Logger
}

func (r retryLogger) fields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Error(msg, r.fields(kv)...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Debug(msg, r.fields(kv)...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debug(msg, r.fields(kv)...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warn(msg, r.fields(kv)...) }
