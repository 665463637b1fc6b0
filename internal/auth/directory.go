package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const privyAPIBase = "https://auth.privy.io"

// PrivyDirectory fetches user records from the Privy REST API.
type PrivyDirectory struct {
	appID     string
	appSecret string
	baseURL   string
	http      *fasthttp.Client
	timeout   time.Duration
}

type DirectoryOption func(*PrivyDirectory)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) DirectoryOption {
	return func(d *PrivyDirectory) { d.baseURL = u }
}

func WithDirectoryTimeout(t time.Duration) DirectoryOption {
	return func(d *PrivyDirectory) { d.timeout = t }
}

func NewPrivyDirectory(appID, appSecret string, opts ...DirectoryOption) *PrivyDirectory {
	d := &PrivyDirectory{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   privyAPIBase,
		http:      &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FetchUser loads one user by DID.
func (d *PrivyDirectory) FetchUser(ctx context.Context, did string) (*User, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(d.baseURL + "/api/v1/users/" + did)
	req.Header.Set("Authorization", "Basic "+basicAuth(d.appID, d.appSecret))
	req.Header.Set("privy-app-id", d.appID)

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("privy request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("privy responded %d", resp.StatusCode())
	}

	var user User
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, fmt.Errorf("decode privy user: %w", err)
	}
	return &user, nil
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}
