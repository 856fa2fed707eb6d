package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-authcore/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultTokenRequestTimeout             = 30 * time.Second
	defaultTokenResponseBodyLimit    int64 = 1 << 20
	FaultCodeNetwork                       = "network_error"
	FaultCodeInvalidResponse               = "invalid_response"
	defaultTokenEndpointErrorMessage       = "token endpoint request failed"
)

type TokenClientConfig struct {
	HTTPClient           core.HTTPDoer
	Headers              core.HeaderSource
	DefaultHeaders       map[string]string
	RequestTimeout       time.Duration
	MaxResponseBodyBytes int64
}

// TokenResponse is a decoded 2xx token endpoint reply.
type TokenResponse struct {
	StatusCode int
	Headers    map[string]string
	Payload    map[string]any
	Duration   time.Duration
}

func (r TokenResponse) String(key string) string {
	return readAnyString(r.Payload[key])
}

// TokenClient posts form requests to a token endpoint and maps protocol
// errors onto service faults so the dispatcher and ledger can classify them.
type TokenClient struct {
	config     TokenClientConfig
	httpClient core.HTTPDoer
}

func NewTokenClient(cfg TokenClientConfig) *TokenClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	limit := cfg.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultTokenResponseBodyLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	headers := make(map[string]string, len(cfg.DefaultHeaders))
	for key, value := range cfg.DefaultHeaders {
		if key = strings.TrimSpace(key); key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return &TokenClient{
		config: TokenClientConfig{
			Headers:              cfg.Headers,
			DefaultHeaders:       headers,
			RequestTimeout:       timeout,
			MaxResponseBodyBytes: limit,
		},
		httpClient: httpClient,
	}
}

// PostForm sends form to endpoint. Telemetry headers for the command bound to
// ctx are attached before the request leaves.
func (c *TokenClient) PostForm(ctx context.Context, endpoint string, form url.Values) (TokenResponse, error) {
	if c == nil || c.httpClient == nil {
		return TokenResponse{}, transportError(nil, goerrors.CategoryInternal, http.StatusInternalServerError,
			"transport: token client requires an http client", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	parsedURL, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return TokenResponse{}, transportError(err, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: invalid token endpoint", map[string]any{"endpoint": strings.TrimSpace(endpoint)})
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return TokenResponse{}, transportError(nil, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: token endpoint must be an absolute url", map[string]any{"endpoint": parsedURL.String()})
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, parsedURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, transportError(err, goerrors.CategoryBadInput, http.StatusBadRequest,
			"transport: create token request", map[string]any{"endpoint": parsedURL.String()})
	}
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.Headers != nil {
		applyHeaders(httpReq.Header, c.config.Headers.TelemetryHeaders(ctx))
	}

	startedAt := time.Now()
	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return TokenResponse{}, core.NewUserCancel("token request cancelled")
		}
		return TokenResponse{}, core.NewServiceFault(0, FaultCodeNetwork, err.Error())
	}
	defer httpRes.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpRes.Body, c.config.MaxResponseBodyBytes+1))
	if err != nil {
		return TokenResponse{}, core.NewServiceFault(0, FaultCodeNetwork, "read token response: "+err.Error())
	}
	if int64(len(body)) > c.config.MaxResponseBodyBytes {
		return TokenResponse{}, transportError(nil, goerrors.CategoryExternal, http.StatusBadGateway,
			fmt.Sprintf("transport: token response exceeds limit of %d bytes", c.config.MaxResponseBodyBytes),
			map[string]any{"status_code": httpRes.StatusCode})
	}

	payload := map[string]any{}
	if strings.TrimSpace(string(body)) != "" {
		if err := json.Unmarshal(body, &payload); err != nil {
			if isSuccess(httpRes.StatusCode) {
				return TokenResponse{}, core.NewLocalFault(FaultCodeInvalidResponse, "decode token response: "+err.Error())
			}
			payload = map[string]any{}
		}
	}

	errorCode := strings.TrimSpace(readAnyString(payload["error"]))
	if !isSuccess(httpRes.StatusCode) || errorCode != "" {
		description := strings.TrimSpace(readAnyString(payload["error_description"]))
		if description == "" {
			description = defaultTokenEndpointErrorMessage
		}
		if errorCode == "" {
			errorCode = strings.ToLower(strings.ReplaceAll(http.StatusText(httpRes.StatusCode), " ", "_"))
		}
		fault := core.NewServiceFault(httpRes.StatusCode, errorCode, description)
		if suberror := strings.TrimSpace(readAnyString(payload["suberror"])); suberror != "" {
			fault.WithMetadata(map[string]any{"suberror": suberror})
		}
		return TokenResponse{}, fault
	}

	return TokenResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Payload:    payload,
		Duration:   time.Since(startedAt),
	}, nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
