package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/sobandev/careerpilot-ai/internal/domain"
)

const (
	fallbackRequestDetail = "Request failed"
	fallbackUploadDetail  = "Upload failed"
	maxErrorBody          = 64 << 10
	defaultUploadField    = "file"
)

// Request describes one outbound API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// SkipRecovery treats 401 as an ordinary failure. Used for the login,
	// registration and logout calls whose 401 carries a message for the user.
	SkipRecovery bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Upload describes a multipart file upload.
type Upload struct {
	Path     string
	Field    string
	FileName string
	Content  io.Reader
	Header   http.Header
}

func (c *Client) resolve(path string, query url.Values) string {
	target := c.baseURL + path
	if len(query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

func (c *Client) jsonAttempt(r Request) (attemptFunc, error) {
	var payload []byte
	if r.Body != nil {
		raw, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = raw
	}

	method := r.method()
	target := c.resolve(r.Path, r.Query)

	return func(ctx context.Context, token string) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		applyHeaders(req.Header, r.Header, token)
		return req, nil
	}, nil
}

func (c *Client) uploadAttempt(up Upload) (attemptFunc, error) {
	if up.Content == nil {
		return nil, fmt.Errorf("upload %s: no content", up.Path)
	}
	field := up.Field
	if field == "" {
		field = defaultUploadField
	}

	// The payload is built once so the retry replays identical bytes.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, up.FileName)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("reading upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	payload := buf.Bytes()
	contentType := mw.FormDataContentType()
	target := c.resolve(up.Path, nil)

	return func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("building upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		applyHeaders(req.Header, up.Header, token)
		return req, nil
	}, nil
}

// applyHeaders layers caller overrides and then the bearer token, unless an
// override already carries Authorization.
func applyHeaders(dst, overrides http.Header, token string) {
	for key, values := range overrides {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	if token != "" && dst.Get("Authorization") == "" {
		dst.Set("Authorization", "Bearer "+token)
	}
}

// requestError turns a non-success response into a RequestError. The detail
// comes from a JSON "detail" field, then "HTTP <status>" for other JSON
// bodies, then fallback for bodies that are not JSON.
func (c *Client) requestError(resp *http.Response, fallback string) *domain.RequestError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	detail := fallback
	var payload any
	if err := json.Unmarshal(raw, &payload); err == nil {
		detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		if obj, ok := payload.(map[string]any); ok {
			if text := renderDetail(obj["detail"]); text != "" {
				detail = text
			}
		}
	}

	return &domain.RequestError{
		Status: resp.StatusCode,
		Detail: c.sanitize(detail),
	}
}

func renderDetail(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// sanitize strips markup from server text before it is shown in a terminal.
func (c *Client) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(s)))
}

func decode(resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", domain.ErrTransport, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
