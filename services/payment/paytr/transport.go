package paytr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://www.paytr.com"
	DefaultLinkBaseURL = "https://www.paytr.com/link"
	DefaultTimeout     = 20 * time.Second

	// LoopbackIP is signed when the client address cannot be resolved.
	LoopbackIP = "127.0.0.1"
)

// Endpoints are the gateway URLs per operation.
type Endpoints struct {
	Charge      string
	Link        string
	Status      string
	LinkBaseURL string
}

func NewEndpoints(baseURL, linkBaseURL string) Endpoints {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	linkBaseURL = strings.TrimRight(linkBaseURL, "/")
	if linkBaseURL == "" {
		linkBaseURL = DefaultLinkBaseURL
	}
	return Endpoints{
		Charge:      baseURL + "/odeme",
		Link:        baseURL + "/odeme/api/link/create",
		Status:      baseURL + "/odeme/durum-sorgu",
		LinkBaseURL: linkBaseURL,
	}
}

// Transport posts a form-encoded body. Implementations must honour ctx.
type Transport interface {
	PostForm(ctx context.Context, url, body string) (status int, respBody string, err error)
}

// HTTPTransport is the net/http Transport used against the live gateway.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPTransport{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (t *HTTPTransport) PostForm(ctx context.Context, url, body string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("error reading response body: %w", err)
	}
	return resp.StatusCode, string(respBody), nil
}

// IPResolver supplies the end user's address for the signed user_ip field.
type IPResolver interface {
	ClientIP(ctx context.Context) (string, error)
}

type IPResolverFunc func(ctx context.Context) (string, error)

func (f IPResolverFunc) ClientIP(ctx context.Context) (string, error) {
	return f(ctx)
}

type clientIPKey struct{}

// WithClientIP stores the caller's address for ContextIPResolver.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ContextIPResolver reads the address stored by WithClientIP.
var ContextIPResolver IPResolver = IPResolverFunc(func(ctx context.Context) (string, error) {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	if ip == "" {
		return "", fmt.Errorf("no client ip in context")
	}
	return ip, nil
})
