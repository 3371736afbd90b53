package xert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultConvertAboveFTP = "mmp"
	defaultConvertBelowFTP = "xssr"
)

// ErrNoFiles - an upload was requested with nothing to upload. Caught before
// any upstream traffic happens.
var ErrNoFiles = errors.New("no files provided")

// WorkoutFile is one file of an import upload.
type WorkoutFile struct {
	Name    string
	Content []byte
}

// UploadOptions control how the upstream converts power targets relative to
// the athlete's FTP. Empty fields fall back to the upstream defaults.
type UploadOptions struct {
	ConvertAboveFTP string
	ConvertBelowFTP string
}

// UploadWorkoutFiles logs into the site and posts the given files to the
// workout import endpoint as a browser would: multipart form, session
// cookies, CSRF token from the import page. The upstream response is
// relayed verbatim.
func (c *Client) UploadWorkoutFiles(
	ctx context.Context,
	files []WorkoutFile,
	opts UploadOptions,
) (*UpstreamResponse, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "xert.client.uploadWorkoutFiles")
	defer span.End()
	span.SetAttributes(attribute.Int("files.count", len(files)))

	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	importCtx, err := c.login(ctx)
	if err != nil {
		c.metrics.CounterFailedLogins.Inc()
		span.SetStatus(codes.Error, fmt.Sprintf("login: %s", err))
		return nil, err
	}
	c.metrics.CounterSessionLogins.Inc()

	if opts.ConvertAboveFTP == "" {
		opts.ConvertAboveFTP = defaultConvertAboveFTP
	}
	if opts.ConvertBelowFTP == "" {
		opts.ConvertBelowFTP = defaultConvertBelowFTP
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("_token", importCtx.csrf); err != nil {
		return nil, fmt.Errorf("write multipart field: %w", err)
	}
	if err := mw.WriteField("convert_above_ftp", opts.ConvertAboveFTP); err != nil {
		return nil, fmt.Errorf("write multipart field: %w", err)
	}
	if err := mw.WriteField("convert_below_ftp", opts.ConvertBelowFTP); err != nil {
		return nil, fmt.Errorf("write multipart field: %w", err)
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files[]", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create multipart file part: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, fmt.Errorf("write multipart file part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workouts/import", &body)
	if err != nil {
		return nil, err
	}
	for name, values := range importCtx.uploadHeaders {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("upload: %s", err))
		return nil, fmt.Errorf("upload workout files: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	c.metrics.CounterWorkoutUploads.Inc()
	log.Debugf("uploaded %d workout file(s), upstream status %d", len(files), resp.StatusCode)

	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: responseContentType(resp),
		Body:        respBytes,
	}, nil
}
