package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labelforge/labelforge/pkg/backoff"
	"golang.org/x/time/rate"
)

// HTTPFetcher is the standard BlobFetcher: a GET with bounded retries.
type HTTPFetcher struct {
	Client  *http.Client
	Headers map[string]string // eg an Authorization header
	Retry   backoff.Config
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := backoff.Retry(ctx, f.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		for k, v := range f.Headers {
			req.Header.Set(k, v)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &NetworkError{URL: url, StatusCode: resp.StatusCode}
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// HTTPSigner uploads blobs with PUT and returns the content URL. The upload
// key is derived from the payload hash, which makes Sign idempotent for a
// given payload.
type HTTPSigner struct {
	Client   *http.Client
	Endpoint string // Base URL; the payload key is appended
	Headers  map[string]string
	Retry    backoff.Config
}

func NewHTTPSigner(endpoint string) *HTTPSigner {
	return &HTTPSigner{Client: http.DefaultClient, Endpoint: endpoint}
}

func (s *HTTPSigner) Sign(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	url := fmt.Sprintf("%v/%v", s.Endpoint, hex.EncodeToString(sum[:16]))
	err := backoff.Retry(ctx, s.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		for k, v := range s.Headers {
			req.Header.Set(k, v)
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &NetworkError{URL: url, StatusCode: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPExecutor is the standard GraphQLExecutor. Requests are paced through a
// client-side limiter; a 429 from the server is retried with backoff before
// surfacing as *APILimitError.
type HTTPExecutor struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Limiter  *rate.Limiter
	Retry    backoff.Config
}

func NewHTTPExecutor(endpoint, apiKey string) *HTTPExecutor {
	return &HTTPExecutor{
		Client:   http.DefaultClient,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Limiter:  rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, query string, vars map[string]any) (map[string]any, error) {
	var out map[string]any
	err := backoff.Retry(ctx, e.Retry, func() error {
		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.APIKey)
		}
		resp, err := e.Client.Do(req)
		if err != nil {
			return &NetworkError{URL: e.Endpoint, Err: err}
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &APILimitError{URL: e.Endpoint}
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return &NetworkError{URL: e.Endpoint, StatusCode: resp.StatusCode}
		}
		var decoded graphqlResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decoding graphql response: %w", err)
		}
		if len(decoded.Errors) > 0 {
			return backoff.Permanent(fmt.Errorf("graphql: %v", decoded.Errors[0].Message))
		}
		out = decoded.Data
		return nil
	})
	return out, err
}
