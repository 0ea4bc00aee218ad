// Package upload publishes finished recordings to the classroom service:
// fetch upload credentials, push the thumbnail and video to the object
// store, then register the video record.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/httpclient"
	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/urlutil"
	"github.com/jmylchreest/roomrec/internal/version"
)

// ErrRejected is returned when the classroom service or object store answers
// with a non-success status.
var ErrRejected = errors.New("upload rejected")

const (
	getUploadKeyPath     = "/cloudClass/classVideo/api/getUploadKey"
	insertClassVideoPath = "/cloudClass/classVideo/api/insertClassVideo"
)

// ossTarget is one object-store upload grant from getUploadKey.
type ossTarget struct {
	Host      string `json:"host"`
	Dir       string `json:"dir"`
	Policy    string `json:"policy"`
	AccessID  string `json:"accessid"`
	Signature string `json:"signature"`
}

// uploadKey is the getUploadKey response.
type uploadKey struct {
	Prefix string    `json:"prefix"`
	Image  ossTarget `json:"image"`
	Video  ossTarget `json:"video"`
}

// Client implements recording.Uploader against the classroom service's
// three-step protocol.
type Client struct {
	http   *httpclient.Client
	logger *slog.Logger
}

// NewClient creates an upload client. Transport-level retries stay off; the
// protocol steps carry their own single retry because multipart bodies are
// not rewindable.
func NewClient(cfg config.UploadConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := httpclient.DefaultConfig()
	hc.RetryAttempts = 0
	hc.Logger = logger
	hc.UserAgent = version.UserAgent()
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{
		http:   httpclient.New(hc),
		logger: logger,
	}
}

// Upload runs getUploadKey → thumbnail → video → insertClassVideo. Each step
// is retried at most once; a permanent failure leaves local files untouched
// for the caller to preserve.
func (c *Client) Upload(ctx context.Context, req recording.UploadRequest) (recording.UploadResult, error) {
	server := urlutil.NormalizeBaseURL(req.Server)

	var key uploadKey
	err := c.withRetry(ctx, "getUploadKey", func() error {
		var err error
		key, err = c.getUploadKey(ctx, server, req.ClassID, req.CloudClassID)
		return err
	})
	if err != nil {
		return recording.UploadResult{}, err
	}

	ts := time.Now().Unix()
	imageKey := fmt.Sprintf("%s%d.png", key.Image.Dir, ts)
	videoKey := fmt.Sprintf("%s%d.mp4", key.Video.Dir, ts)

	err = c.withRetry(ctx, "thumbnail upload", func() error {
		return c.putObject(ctx, key.Image, imageKey, req.ThumbnailPath, "image/png")
	})
	if err != nil {
		return recording.UploadResult{}, err
	}

	err = c.withRetry(ctx, "video upload", func() error {
		return c.putObject(ctx, key.Video, videoKey, req.VideoPath, "video/mp4")
	})
	if err != nil {
		return recording.UploadResult{}, err
	}

	result := recording.UploadResult{
		PlayURL:  key.Prefix + videoKey,
		CoverURL: key.Prefix + imageKey,
	}

	err = c.withRetry(ctx, "insertClassVideo", func() error {
		return c.insertClassVideo(ctx, server, req, result)
	})
	if err != nil {
		return recording.UploadResult{}, err
	}

	c.logger.Info("recording uploaded",
		slog.String("class_id", req.ClassID),
		slog.String("play_url", result.PlayURL))
	return result, nil
}

// withRetry runs a protocol step, retrying exactly once on failure.
func (c *Client) withRetry(ctx context.Context, step string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	c.logger.Warn("upload step failed, retrying once",
		slog.String("step", step),
		slog.String("error", err.Error()))
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err = fn(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// getUploadKey fetches the upload grants for a class.
func (c *Client) getUploadKey(ctx context.Context, server, classID, cloudClassID string) (uploadKey, error) {
	form := url.Values{}
	form.Set("classId", classID)
	form.Set("cloudClassId", cloudClassID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		urlutil.JoinPath(server, getUploadKeyPath),
		strings.NewReader(form.Encode()))
	if err != nil {
		return uploadKey{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return uploadKey{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return uploadKey{}, fmt.Errorf("%w: getUploadKey returned %d", ErrRejected, resp.StatusCode)
	}

	var key uploadKey
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return uploadKey{}, fmt.Errorf("decoding upload key: %w", err)
	}
	return key, nil
}

// putObject uploads one file to the object store with a signed policy. The
// store requires every policy field before the file part, so the multipart
// body is written in a fixed order.
func (c *Client) putObject(ctx context.Context, target ossTarget, key, filePath, contentType string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"key", key},
		{"policy", target.Policy},
		{"OSSAccessKeyId", target.AccessID},
		{"success_action_status", "200"},
		{"signature", target.Signature},
	}
	for _, field := range fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return fmt.Errorf("writing policy field %s: %w", field.name, err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(key)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying %s: %w", filePath, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Host, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: object store returned %d for %s", ErrRejected, resp.StatusCode, key)
	}
	return nil
}

// insertClassVideo registers the uploaded artifacts with the classroom
// service.
func (c *Client) insertClassVideo(ctx context.Context, server string, req recording.UploadRequest, res recording.UploadResult) error {
	payload, err := json.Marshal(map[string]any{
		"cloudClassId":  req.CloudClassID,
		"fileSize":      req.SizeBytes,
		"duration":      req.DurationSec,
		"fileType":      ".mp4",
		"filePlayPath":  res.PlayURL,
		"fileCoverPath": res.CoverURL,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		urlutil.JoinPath(server, insertClassVideoPath),
		bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: insertClassVideo returned %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
