package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridewave/httppipe/httpclient"
)

// RequestOptions holds options for the request commands
type RequestOptions struct {
	Query   []string
	Headers []string
	Data    string
	NoCache bool
	NoRetry bool
	NoAuth  bool
	Offline bool
	Include bool
	Raw     bool
}

// NewRequestCommand creates the command that sends one request with method.
func NewRequestCommand(global *GlobalOptions, method string) *cobra.Command {
	opts := &RequestOptions{}
	name := strings.ToLower(method)

	cmd := &cobra.Command{
		Use:   name + " PATH",
		Short: fmt.Sprintf("Send a %s request through the pipeline", method),
		Example: fmt.Sprintf(`  # Relative to the configured base URL
  pipectl %[1]s /drivers -q status=active

  # Absolute URL with an extra header
  pipectl %[1]s https://api.example.com/drivers -H "Accept-Language: en"`, name),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, global, opts, method, args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, `Header as "Name: value" (repeatable)`)
	if method != http.MethodGet && method != http.MethodDelete {
		cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "Request body, or @file to read it from a file")
	}
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVar(&opts.NoRetry, "no-retry", false, "Send at most once")
	cmd.Flags().BoolVar(&opts.NoAuth, "no-auth", false, "Do not attach the bearer token")
	cmd.Flags().BoolVar(&opts.Offline, "offline-allowed", false, "Send even when the connectivity gate reports offline")
	cmd.Flags().BoolVarP(&opts.Include, "include", "i", false, "Print the status line and response headers")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Print the body as received instead of indenting JSON")

	return cmd
}

func runRequest(cmd *cobra.Command, global *GlobalOptions, opts *RequestOptions, method, path string) error {
	req, err := opts.build(path)
	if err != nil {
		return err
	}

	client, _, err := global.newClient(cmd)
	if err != nil {
		return err
	}

	resp, callErr := client.Do(cmd.Context(), method, req)
	if closeErr := client.Close(); closeErr != nil && callErr == nil {
		return closeErr
	}
	if callErr != nil {
		return describeFailure(cmd.ErrOrStderr(), callErr)
	}

	out := cmd.OutOrStdout()
	if opts.Include {
		writeHead(out, resp)
	}
	return writeBody(out, resp.Body, opts.Raw)
}

func (o *RequestOptions) build(path string) (*httpclient.Request, error) {
	req := &httpclient.Request{
		Path: path,
		Options: httpclient.RequestOptions{
			SkipCache:      o.NoCache,
			SkipRetry:      o.NoRetry,
			SkipAuth:       o.NoAuth,
			OfflineAllowed: o.Offline,
		},
	}

	query, err := parseQuery(o.Query)
	if err != nil {
		return nil, err
	}
	req.Query = query

	if len(o.Headers) > 0 {
		req.Headers = http.Header{}
		for _, h := range o.Headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf(`invalid header %q, expected "Name: value"`, h)
			}
			req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	body, err := readData(o.Data)
	if err != nil {
		return nil, err
	}
	req.Body = body
	return req, nil
}

// parseQuery turns key=value pairs into query values, nil when empty.
func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", kv)
		}
		values.Add(key, value)
	}
	return values, nil
}

func readData(data string) ([]byte, error) {
	if file, ok := strings.CutPrefix(data, "@"); ok {
		body, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		return body, nil
	}
	if data == "" {
		return nil, nil
	}
	return []byte(data), nil
}

func writeHead(w io.Writer, resp *httpclient.Response) {
	fmt.Fprintf(w, "HTTP %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))

	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range resp.Headers[name] {
			fmt.Fprintf(w, "%s: %s\n", name, value)
		}
	}
	fmt.Fprintf(w, "X-Attempts: %d\nX-Elapsed: %s\n\n", resp.Stats.Attempts, resp.Stats.ElapsedTime)
}

func writeBody(w io.Writer, body []byte, raw bool) error {
	if len(body) == 0 {
		return nil
	}
	if !raw && json.Valid(body) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			buf.WriteByte('\n')
			_, err = w.Write(buf.Bytes())
			return err
		}
	}
	_, err := w.Write(body)
	return err
}

// describeFailure prints field errors before returning the failure, which
// main reports on its own line.
func describeFailure(w io.Writer, err error) error {
	var f *httpclient.Failure
	if !errors.As(err, &f) {
		return err
	}

	fields := make([]string, 0, len(f.FieldErrors))
	for field := range f.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "  %s: %s\n", field, strings.Join(f.FieldErrors[field], ", "))
	}
	if f.RetryAfter > 0 {
		fmt.Fprintf(w, "  retry after %s\n", f.RetryAfter)
	}
	return err
}
