package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zombor/billed/internal/bill"
)

// HTTP talks to the bill API over HTTP
type HTTP struct {
	baseURL  *url.URL
	client   *http.Client
	username string
	password string
}

// HTTPOption configures an HTTP store
type HTTPOption func(*HTTP)

// WithBasicAuth sends basic auth credentials with every request
func WithBasicAuth(username, password string) HTTPOption {
	return func(h *HTTP) {
		h.username = username
		h.password = password
	}
}

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = client
	}
}

// NewHTTP creates a store client for the bill API rooted at baseURL
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing store url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("store url %q must be absolute", baseURL)
	}

	h := &HTTP{
		baseURL: u,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Bills returns the bill resource
func (h *HTTP) Bills() BillsResource {
	return &httpBills{h: h}
}

type httpBills struct {
	h *HTTP
}

func (b *httpBills) List(ctx context.Context) ([]bill.Bill, error) {
	var bills []bill.Bill
	if err := b.h.do(ctx, http.MethodGet, "/api/bills", nil, "", &bills); err != nil {
		return nil, err
	}
	for i := range bills {
		bills[i].FileURL = b.h.resolve(bills[i].FileURL)
	}
	return bills, nil
}

func (b *httpBills) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("create bill: missing form data")
	}
	body, formType, err := req.Data.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding form data: %w", err)
	}

	contentType := "application/json"
	if req.Headers.NoContentType {
		contentType = formType
	}

	var result CreateResult
	if err := b.h.do(ctx, http.MethodPost, "/api/bills", body, contentType, &result); err != nil {
		return nil, err
	}
	result.FileURL = b.h.resolve(result.FileURL)
	return &result, nil
}

// Update patches the draft named by req.Selector. Without a selector the bill
// had no receipt upload and is created instead.
func (b *httpBills) Update(ctx context.Context, req UpdateRequest) (*bill.Bill, error) {
	payload, err := json.Marshal(req.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling bill: %w", err)
	}

	method, path := http.MethodPatch, "/api/bills/"+url.PathEscape(req.Selector)
	if req.Selector == "" {
		method, path = http.MethodPost, "/api/bills"
	}

	var updated bill.Bill
	if err := b.h.do(ctx, method, path, bytes.NewReader(payload), "application/json", &updated); err != nil {
		return nil, err
	}
	updated.FileURL = b.h.resolve(updated.FileURL)
	return &updated, nil
}

// do sends one request and decodes a 2xx JSON answer into out
func (h *HTTP) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if h.username != "" || h.password != "" {
		req.SetBasicAuth(h.username, h.password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling bill API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &Error{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// resolve turns API-relative file links into absolute ones
func (h *HTTP) resolve(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.IsAbs() {
		return link
	}
	return h.baseURL.ResolveReference(u).String()
}
