package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Transport sends one attempt. It returns a *Response for every status the
// server answers with and an error only when no response was received.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	client         *http.Client
	baseURL        string
	defaultHeaders http.Header
}

// NewHTTPTransport returns a transport that resolves relative paths against
// baseURL. A nil client uses http.DefaultClient settings with no timeout;
// callers normally pass one with a timeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		client:         client,
		baseURL:        strings.TrimRight(baseURL, "/"),
		defaultHeaders: make(http.Header),
	}
}

// WithDefaultHeader adds a header sent on every request unless the request
// sets it.
func (t *HTTPTransport) WithDefaultHeader(key, value string) *HTTPTransport {
	t.defaultHeaders.Set(key, value)
	return t
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, NewTransportError("request execution failed", err)
	}
	return t.buildResponse(httpResp)
}

// ResolveURL joins the base URL, path and query.
func (t *HTTPTransport) ResolveURL(path string, query url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = t.baseURL + "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		merged := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u.String(), nil
}

func (t *HTTPTransport) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target, err := t.ResolveURL(req.Path, req.Query)
	if err != nil {
		return nil, &TransportError{Kind: TransportOther, Message: "invalid request URL", Err: err}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Kind: TransportOther, Message: "failed to create HTTP request", Err: err}
	}

	for key, values := range t.defaultHeaders {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, values := range req.Headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func (t *HTTPTransport) buildResponse(httpResp *http.Response) (*Response, error) {
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewTransportError("failed to read response body", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}
