package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedisam/filedrop/client/api/rest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewClient(t *testing.T) {
	_, err := rest.NewClient(quietLogger(), "localhost:5000")
	require.Error(t, err)

	_, err = rest.NewClient(quietLogger(), "http://localhost:5000/")
	require.NoError(t, err)
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b c.png")
	require.NoError(t, os.WriteFile(a, []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("bravo"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		_, err := uuid.Parse(r.Header.Get("X-Request-Id"))
		assert.NoError(t, err)

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		got := map[string]string{}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, "file", p.FormName())
			data, err := io.ReadAll(p)
			require.NoError(t, err)
			got[p.FileName()] = string(data)
		}
		assert.Equal(t, map[string]string{"a.txt": "alpha", "b c.png": "bravo"}, got)

		_, _ = io.WriteString(w, "a.txt: http://drop/key0001\r\nb c.png: http://drop/key0002\r\n")
	}))
	defer srv.Close()

	client, err := rest.NewClient(quietLogger(), srv.URL)
	require.NoError(t, err)

	links, err := client.Upload(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, []*rest.Link{
		{Filename: "a.txt", URL: "http://drop/key0001"},
		{Filename: "b c.png", URL: "http://drop/key0002"},
	}, links)
}

func TestUploadFailures(t *testing.T) {
	tests := map[string]struct {
		status      int
		missingFile bool
		errContains string
	}{
		"server rejects": {
			status:      http.StatusNotImplemented,
			errContains: "501",
		},
		"internal error is not retried": {
			status:      http.StatusInternalServerError,
			errContains: "500",
		},
		"file vanished": {
			status:      http.StatusOK,
			missingFile: true,
			errContains: "http upload failed",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			path := filepath.Join(t.TempDir(), "a.txt")
			if !tc.missingFile {
				require.NoError(t, os.WriteFile(path, []byte("alpha"), 0644))
			}

			client, err := rest.NewClient(quietLogger(), srv.URL)
			require.NoError(t, err)

			_, err = client.Upload(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errContains)
			assert.LessOrEqual(t, calls.Load(), int32(1))
		})
	}
}

func TestDownload(t *testing.T) {
	tests := map[string]struct {
		failures     int32
		status       int
		expectedData string
		expectedDl   *rest.Download
		errIs        error
		errContains  string
	}{
		"success": {
			status:       http.StatusOK,
			expectedData: "payload",
			expectedDl:   &rest.Download{ContentType: "text/plain", Filename: "notes two.txt", Written: 7},
		},
		"retries server errors": {
			failures:     2,
			status:       http.StatusOK,
			expectedData: "payload",
			expectedDl:   &rest.Download{ContentType: "text/plain", Filename: "notes two.txt", Written: 7},
		},
		"not found": {
			status: http.StatusNotFound,
			errIs:  rest.ErrNotFound,
		},
		"unexpected status": {
			status:      http.StatusTeapot,
			errContains: "418",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/abcdefg", r.URL.Path)
				if calls.Add(1) <= tc.failures {
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				if tc.status != http.StatusOK {
					http.Error(w, http.StatusText(tc.status), tc.status)
					return
				}
				w.Header().Set("Content-Type", "text/plain")
				w.Header().Set("Content-Disposition", `inline; filename="notes two.txt"`)
				_, _ = io.WriteString(w, "payload")
			}))
			defer srv.Close()

			client, err := rest.NewClient(quietLogger(), srv.URL)
			require.NoError(t, err)

			var buf bytes.Buffer
			dl, err := client.Download(context.Background(), "abcdefg", &buf)
			if tc.errIs != nil || tc.errContains != "" {
				require.Error(t, err)
				if tc.errIs != nil {
					assert.ErrorIs(t, err, tc.errIs)
				}
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedDl, dl)
			assert.Equal(t, tc.expectedData, buf.String())
			assert.Equal(t, tc.failures+1, calls.Load())
		})
	}
}

func TestDescribe(t *testing.T) {
	want := &rest.Info{
		Key:      "abcdefg",
		Filename: "a.txt",
		Expires:  time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC),
		Created:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/uploads/abcdefg" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client, err := rest.NewClient(quietLogger(), srv.URL)
	require.NoError(t, err)

	got, err := client.Describe(context.Background(), "abcdefg")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = client.Describe(context.Background(), "zzzzzzz")
	require.ErrorIs(t, err, rest.ErrNotFound)
}
