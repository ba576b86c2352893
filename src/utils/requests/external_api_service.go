package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"stockdesk/src/utils"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// ExternalAPIService sends credentialed JSON requests to one backend. Credentials
// travel as cookies kept in the client's jar, the same way a browser sends them
// with `credentials: include`.
type ExternalAPIService struct {
	BaseURL    string
	Client     *http.Client
	jar        *sessionJar
	Retries    uint64
	RetryDelay time.Duration
	Logger     *logrus.Logger
}

// NewExternalAPIService creates a new instance of ExternalAPIService
func NewExternalAPIService(baseURL string, timeout time.Duration, logger *logrus.Logger) (*ExternalAPIService, error) {
	jar, err := newSessionJar()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ExternalAPIService{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Client:     &http.Client{Jar: jar, Timeout: timeout},
		jar:        jar,
		RetryDelay: 200 * time.Millisecond,
		Logger:     logger,
	}, nil
}

// WithRetries enables retrying GET requests that failed before any response arrived.
func (s *ExternalAPIService) WithRetries(retries uint64, delay time.Duration) *ExternalAPIService {
	s.Retries = retries
	if delay > 0 {
		s.RetryDelay = delay
	}
	return s
}

// ClearCookies drops every credential the jar holds.
func (s *ExternalAPIService) ClearCookies() {
	s.jar.reset()
}

// sessionJar lets the cookie set be dropped while requests are in flight.
type sessionJar struct {
	mutex sync.RWMutex
	inner *cookiejar.Jar
}

func newSessionJar() (*sessionJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &sessionJar{inner: inner}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	j.inner.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.inner.Cookies(u)
}

func (j *sessionJar) reset() {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	j.mutex.Lock()
	j.inner = inner
	j.mutex.Unlock()
}

// makeRequest is a helper function to make HTTP requests, supporting optional query parameters
func (s *ExternalAPIService) makeRequest(ctx context.Context, method, endpoint string, params url.Values, body interface{}) (*http.Response, error) {
	target := s.BaseURL + endpoint
	if len(params) > 0 {
		target = target + "?" + params.Encode()
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	send := func(ctx context.Context) (*http.Response, error) {
		var reader io.Reader
		if jsonBody != nil {
			reader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(RequestIDHeader, requestID)
		return s.Client.Do(req)
	}

	log := utils.LoggerFromContext(ctx, s.Logger).WithFields(logrus.Fields{"method": method, "endpoint": endpoint, "request_id": requestID})

	if method != http.MethodGet || s.Retries == 0 {
		resp, err := send(ctx)
		if err != nil {
			log.WithError(err).Debug("request failed")
			return nil, err
		}
		log.WithField("status", resp.StatusCode).Debug("request done")
		return resp, nil
	}

	// Only transport failures are retried; any status code is an answer.
	var resp *http.Response
	backoff := retry.WithMaxRetries(s.Retries, retry.NewConstant(s.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = send(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.WithError(err).Debug("request failed, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithField("status", resp.StatusCode).Debug("request done")
	return resp, nil
}

// Get makes a GET request to the external service, accepting optional query parameters
func (s *ExternalAPIService) Get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	return s.makeRequest(ctx, http.MethodGet, endpoint, params, nil)
}

// Post makes a POST request to the external service, accepting optional query parameters
func (s *ExternalAPIService) Post(ctx context.Context, endpoint string, params url.Values, body interface{}) (*http.Response, error) {
	return s.makeRequest(ctx, http.MethodPost, endpoint, params, body)
}

// Put makes a PUT request to the external service, accepting optional query parameters
func (s *ExternalAPIService) Put(ctx context.Context, endpoint string, params url.Values, body interface{}) (*http.Response, error) {
	return s.makeRequest(ctx, http.MethodPut, endpoint, params, body)
}

// Delete makes a DELETE request to the external service, accepting optional query parameters
func (s *ExternalAPIService) Delete(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	return s.makeRequest(ctx, http.MethodDelete, endpoint, params, nil)
}
