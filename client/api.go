// Package client talks to the studio REST API and drives generation
// requests through retry, backoff and cancellation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"studioapi/models"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// MessageModelOverloaded is the message the API sends with its retryable 503.
const MessageModelOverloaded = "Model overloaded"

// IsModelOverloaded reports whether err is the API's retryable overload
// answer. A 503 with any other message, such as one from a proxy, is not.
func IsModelOverloaded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusServiceUnavailable &&
		apiErr.Message == MessageModelOverloaded
}

type GenerationRequest struct {
	Prompt    string
	Style     models.Style
	ImageName string
	Image     []byte
}

type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPIClient builds a client without a request timeout. Calls are bounded
// by the caller's context.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) Signup(ctx context.Context, email string, password string, name string) (*models.AuthOut, error) {
	return c.authenticate(ctx, "/api/auth/signup", models.SignUpIn{Email: email, Password: password, Name: name})
}

func (c *APIClient) Login(ctx context.Context, email string, password string) (*models.AuthOut, error) {
	return c.authenticate(ctx, "/api/auth/login", models.LoginIn{Email: email, Password: password})
}

func (c *APIClient) authenticate(ctx context.Context, path string, body interface{}) (*models.AuthOut, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out models.AuthOut
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// CreateGeneration uploads the image with its prompt and style. The body is
// rebuilt from the request on every call so retries resend the same bytes.
func (c *APIClient) CreateGeneration(ctx context.Context, in GenerationRequest) (*models.GenerationOut, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("prompt", in.Prompt); err != nil {
		return nil, err
	}
	if err := writer.WriteField("style", string(in.Style)); err != nil {
		return nil, err
	}
	if in.Image != nil {
		part, err := writer.CreateFormFile("image", in.ImageName)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(in.Image); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/generations", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out models.GenerationOut
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListGenerations(ctx context.Context, limit int) ([]models.GenerationOut, error) {
	path := "/api/generations"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out []models.GenerationOut
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure models.ValidationErrorOut
		_ = json.Unmarshal(raw, &failure)
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Message, Errors: failure.Errors}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
