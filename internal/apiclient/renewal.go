package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sobandev/careerpilot-ai/internal/domain"
)

// NoRenewal never contacts a renewal endpoint. Recovery always fails, so a
// rejected session ends in ErrSessionExpired and the user logs in again.
type NoRenewal struct{}

// Renew always reports ErrRenewalUnavailable.
func (NoRenewal) Renew(context.Context) (domain.Renewal, error) {
	return domain.Renewal{}, domain.ErrRenewalUnavailable
}

// RenewerFunc adapts a function to domain.Renewer.
type RenewerFunc func(ctx context.Context) (domain.Renewal, error)

// Renew calls f.
func (f RenewerFunc) Renew(ctx context.Context) (domain.Renewal, error) {
	return f(ctx)
}

// EndpointRenewal renews the session by posting to a refresh endpoint. The
// long-lived refresh cookie travels in the shared cookie jar.
type EndpointRenewal struct {
	client    *http.Client
	url       string
	userAgent string
}

// NewEndpointRenewal creates a renewer posting to url with client.
func NewEndpointRenewal(client *http.Client, url, userAgent string) *EndpointRenewal {
	return &EndpointRenewal{client: client, url: url, userAgent: userAgent}
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// Renew posts to the refresh endpoint and returns the new access token, if any.
func (r *EndpointRenewal) Renew(ctx context.Context) (domain.Renewal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		return domain.Renewal{}, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Renewal{}, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return domain.Renewal{}, fmt.Errorf("%w: refresh endpoint returned status %d",
			domain.ErrAuthenticationRejected, resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err != nil && err != io.EOF {
		return domain.Renewal{}, fmt.Errorf("decoding refresh response: %w", err)
	}
	return domain.Renewal{Token: body.AccessToken}, nil
}
