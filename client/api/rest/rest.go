package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-Id"

var (
	ErrNotFound = errors.New("not found")

	errRetryableStatus = errors.New("server error")
)

// Link is one line of an upload response.
type Link struct {
	Filename string
	URL      string
}

// Info describes a stored upload.
type Info struct {
	Key      string    `json:"key"`
	Filename string    `json:"filename"`
	Expires  time.Time `json:"expires"`
	Created  time.Time `json:"created"`
}

// Download holds the headers of a downloaded file.
type Download struct {
	ContentType string
	Filename    string
	Written     int64
}

type Client struct {
	logger  *logrus.Logger
	baseURL string
	cli     *http.Client
}

func NewClient(logger *logrus.Logger, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	return &Client{
		logger:  logger,
		baseURL: strings.TrimSuffix(u.String(), "/"),
		// uploads and downloads can be large; requests are bounded by their context instead
		cli: &http.Client{},
	}, nil
}

// Upload streams the given files as one multipart request. It is not retried since the body can't be replayed.
func (c *Client) Upload(ctx context.Context, paths ...string) ([]*Link, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFiles(mw, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("could not create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	logger := c.logger.WithField("request_id", requestID)
	logger.WithField("files", len(paths)).Debug("Uploading files")

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logger.WithField("resp", fmt.Sprintf("%q", string(body))).Error("Upload failed with unexpected status code")
		return nil, fmt.Errorf("http upload failed: %s", resp.Status)
	}

	var links []*Link
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			return nil, fmt.Errorf("unexpected upload response line %q", line)
		}
		links = append(links, &Link{Filename: line[:idx], URL: line[idx+2:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	return links, nil
}

func writeFiles(mw *multipart.Writer, paths []string) error {
	for _, p := range paths {
		if err := writeFile(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

// Download writes the file stored under key to w. Connection failures and server errors are retried as long as
// nothing has been written yet.
func (c *Client) Download(ctx context.Context, key string, w io.Writer) (*Download, error) {
	u, err := url.JoinPath(c.baseURL, url.PathEscape(key))
	if err != nil {
		return nil, fmt.Errorf("create url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create download request: %w", err)
	}

	resp, err := c.doRequestWithRetry(req, "Download")
	if err != nil {
		return nil, fmt.Errorf("failed to download with retry: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "Download"); err != nil {
		return nil, err
	}

	d := &Download{ContentType: resp.Header.Get("Content-Type")}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}

	d.Written, err = io.Copy(w, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download interrupted after %d bytes: %w", d.Written, err)
	}
	return d, nil
}

// Describe fetches the metadata of the upload stored under key.
func (c *Client) Describe(ctx context.Context, key string) (*Info, error) {
	u, err := url.JoinPath(c.baseURL, "v1/uploads", url.PathEscape(key))
	if err != nil {
		return nil, fmt.Errorf("create url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.doRequestWithRetry(req, "Describe")
	if err != nil {
		return nil, fmt.Errorf("failed to describe with retry: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "Describe"); err != nil {
		return nil, err
	}

	var info Info
	err = json.NewDecoder(resp.Body).Decode(&info)
	if err != nil {
		return nil, fmt.Errorf("json decode response: %w", err)
	}
	return &info, nil
}

func (c *Client) checkStatus(resp *http.Response, method string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	}
	body, _ := io.ReadAll(resp.Body)
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"resp":   fmt.Sprintf("%q", string(body)),
	}).Error("Request failed with unexpected status code")
	return fmt.Errorf("http %s failed: %s", strings.ToLower(method), resp.Status)
}

func (c *Client) doRequestWithRetry(req *http.Request, method string) (*http.Response, error) {
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	logger := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"request_id": requestID,
	})

	bk := backoff.WithContext(newExponentialBackoffConfig(), req.Context())
	resp, err := backoff.RetryWithData[*http.Response](func() (*http.Response, error) {
		resp, err := c.cli.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, backoff.Permanent(fmt.Errorf("could not make http call: %w", err))
			}
			logger.WithError(err).Error("Failed to make http request, retrying...")
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			logger.WithField("status", resp.Status).Warn("Server failed, retrying...")
			return nil, fmt.Errorf("%w: %s", errRetryableStatus, resp.Status)
		}
		return resp, nil
	}, bk)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func newExponentialBackoffConfig() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Second*3),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(time.Millisecond*100),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
