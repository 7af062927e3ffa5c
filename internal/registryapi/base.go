package registryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

const userAgent = "registrydash/1.0"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 512

// newRequest builds a GET for endpoint below base. dryRun is forwarded as a
// query parameter.
func (c *Client) newRequest(ctx context.Context, base, endpoint string, query url.Values, opts fetchstate.APIOptions) (*http.Request, error) {
	if strings.TrimSpace(base) == "" {
		return nil, ErrNoHostPath
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.ConfigError("failed to parse host path").
			WithCause(err).
			WithContext("host_path", base).
			Build()
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), endpoint)

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if opts.DryRun {
		q.Set("dryRun", "true")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, errors.FetchError("failed to create request").
			WithCause(err).
			WithContext("url", u.String()).
			Build()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do executes req and decodes the body into result, or returns the raw body
// when opts.RawBody is set.
func (c *Client) do(req *http.Request, opts fetchstate.APIOptions, result any) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NetworkError("failed to reach model registry").
			WithCause(err).
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(req, resp, strings.ReplaceAll(string(limited), "\n", " "))
	}

	if opts.RawBody {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.NetworkError("failed to read response").WithCause(err).Build()
		}
		return body, nil
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, errors.FetchError("failed to decode response").
				WithCause(err).
				WithContext("url", req.URL.String()).
				Build()
		}
	}
	return nil, nil
}

func statusError(req *http.Request, resp *http.Response, body string) error {
	var b *errors.ErrorBuilder
	message := fmt.Sprintf("model registry error: %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		b = errors.AuthError("not authorized to access the model registry")
	case resp.StatusCode == http.StatusNotFound:
		b = errors.NotFoundError("the requested resource was not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		b = errors.NetworkError(message).WithRetry(errors.RetryRateLimit)
	case resp.StatusCode >= 500:
		b = errors.NetworkError(message)
	default:
		b = errors.FetchError(message)
	}
	return b.
		WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.String()).
		WithContext("response", body).
		Build()
}
