package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader      = "X-Request-Id"
	internalErrorMessage = "Internal server error"
)

var pathParamRegex = regexp.MustCompile(`{([^}.$]+)(?:\.\.\.)?}`)

// Err is returned by handlers to answer with a specific status. Any other error becomes a generic 500.
type Err struct {
	Message string
	Status  int
}

func (e *Err) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func NewErrf(status int, msg string, a ...any) *Err {
	return &Err{
		Message: fmt.Sprintf(msg, a...),
		Status:  status,
	}
}

// requestLogger returns a logger carrying the request's trace and the client-supplied request id, if any.
func requestLogger(logger *logrus.Logger, r *http.Request) *logrus.Entry {
	entry := logger.WithContext(r.Context())
	if id := r.Header.Get(requestIDHeader); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}

// Func is a JSON endpoint: it receives the decoded request and returns a response to encode, or an error.
type Func[Req any, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

type Mux interface {
	HandleFunc(pattern string, f func(w http.ResponseWriter, r *http.Request))
}

// RegisterFunc mounts f under "method endpoint", feeding every {wildcard} of endpoint into the request.
func RegisterFunc[Req any, Resp any](logger *logrus.Logger, mux Mux, method, endpoint string, f Func[Req, Resp]) {
	var params []string
	for _, m := range pathParamRegex.FindAllStringSubmatch(endpoint, -1) {
		params = append(params, m[1])
	}
	mux.HandleFunc(method+" "+endpoint, FuncAdapter(logger, f, params...))
}

// FuncAdapter turns f into a handler. The request struct is filled from the JSON body, then query values, then the
// named path values, later sources winning on conflicts. Handler errors other than *Err are logged and hidden.
func FuncAdapter[Req any, Resp any](log *logrus.Logger, f Func[Req, Resp], pathParams ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r).WithFields(logrus.Fields{
			"method":  r.Method,
			"pattern": r.Pattern,
		})

		fields := map[string]any{}
		if r.Body != nil && r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
				logger.WithError(err).Warn("Malformed JSON request body")
				http.Error(w, "Malformed request body", http.StatusBadRequest)
				return
			}
		}
		for name, values := range r.URL.Query() {
			if len(values) == 1 {
				fields[name] = values[0]
			} else {
				fields[name] = values
			}
		}
		for _, name := range pathParams {
			if v := r.PathValue(name); v != "" {
				fields[name] = v
			}
		}

		req, err := decodeFields[Req](fields)
		if err != nil {
			logger.WithError(err).Warn("Request does not match the endpoint's schema")
			http.Error(w, "Malformed request", http.StatusBadRequest)
			return
		}

		resp, err := f(r.Context(), req)
		if err != nil {
			var stErr *Err
			if !errors.As(err, &stErr) {
				logger.WithError(err).Error("Endpoint failed")
				stErr = &Err{Message: internalErrorMessage, Status: http.StatusInternalServerError}
			}
			http.Error(w, stErr.Message, stErr.Status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.WithError(err).Warn("Failed to write response body")
		}
	}
}

// decodeFields round-trips fields through JSON so Req's json tags decide the mapping.
func decodeFields[Req any](fields map[string]any) (*Req, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal request fields: %w", err)
	}
	var req Req
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request fields: %w", err)
	}
	return &req, nil
}
