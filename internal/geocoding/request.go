package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// ErrUnauthorized is wrapped when a provider rejects the credential.
var ErrUnauthorized = errors.New("geocoding provider rejected the credential")

// apiRequest is one JSON GET against a provider endpoint.
type apiRequest struct {
	provider string
	baseURL  string
	query    url.Values
	header   http.Header
}

// getJSON sends req through client and decodes a 200 reply into out.
// 429 wraps ErrRateLimited, 401 and 403 wrap ErrUnauthorized.
func getJSON(ctx context.Context, client HTTPClient, log *slog.Logger, req apiRequest, out any) error {
	reqURL, err := url.Parse(req.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	for key, values := range req.query {
		query[key] = values
	}
	reqURL.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.header {
		httpReq.Header[key] = values
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute geocoding request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s API returned status %d", ErrRateLimited, req.provider, resp.StatusCode)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s API returned status %d", ErrUnauthorized, req.provider, resp.StatusCode)
	default:
		body, _ := io.ReadAll(resp.Body)
		log.ErrorContext(ctx, "Geocoding API error", "provider", req.provider, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("%s API returned status %d: %s", req.provider, resp.StatusCode, string(body))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.provider, err)
	}

	return nil
}
