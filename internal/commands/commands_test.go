package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ridewave/httppipe/auth"
	"github.com/ridewave/httppipe/httpclient"
)

const testAccessToken = "access-123"

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	return runCLIWithInput(t, "", args...)
}

func runCLIWithInput(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()

	root := NewRootCommand("test")
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// cliArgs prefixes args with flags that isolate a test from the user's
// environment.
func cliArgs(t *testing.T, tokenFile, baseURL string, args ...string) []string {
	t.Helper()
	base := []string{"--token-file", tokenFile, "--log-level", "error"}
	if baseURL != "" {
		base = append(base, "--base-url", baseURL)
	}
	return append(base, args...)
}

func tokenFile(t *testing.T, pair auth.TokenPair) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	if pair != (auth.TokenPair{}) {
		require.NoError(t, auth.NewFileStore(path).SaveTokens(t.Context(), pair))
	}
	return path
}

func TestGetAttachesTokenAndQuery(t *testing.T) {
	var gotAuth, gotQuery, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"drivers":[{"id":1}]}`)
	}))
	defer srv.Close()

	tokens := tokenFile(t, auth.TokenPair{AccessToken: testAccessToken, RefreshToken: "r1"})
	res := runCLI(t, cliArgs(t, tokens, srv.URL, "get", "/drivers", "-q", "status=active", "-H", "Accept-Language: en")...)

	require.NoError(t, res.err)
	assert.Equal(t, "Bearer "+testAccessToken, gotAuth)
	assert.Equal(t, "status=active", gotQuery)
	assert.Equal(t, "en", gotHeader)
	assert.Equal(t, "{\n  \"drivers\": [\n    {\n      \"id\": 1\n    }\n  ]\n}\n", res.stdout)
}

func TestGetIncludeAndRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Trace", "abc")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	res := runCLI(t, cliArgs(t, tokenFile(t, auth.TokenPair{}), srv.URL, "get", "/status", "-i", "--raw", "--no-auth")...)

	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "HTTP 200 OK\n"))
	assert.Contains(t, res.stdout, "X-Trace: abc\n")
	assert.Contains(t, res.stdout, "X-Attempts: 1\n")
	assert.True(t, strings.HasSuffix(res.stdout, "\n\n{\"ok\":true}"))
}

func TestGetRefreshPersistsRotatedTokens(t *testing.T) {
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshes++
			_, _ = io.WriteString(w, `{"data":{"accessToken":"fresh","refreshToken":"r2"}}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":7}`)
	}))
	defer srv.Close()

	tokens := tokenFile(t, auth.TokenPair{AccessToken: "stale", RefreshToken: "r1"})
	res := runCLI(t, cliArgs(t, tokens, srv.URL, "get", "/me")...)

	require.NoError(t, res.err)
	assert.Equal(t, 1, refreshes)
	assert.Contains(t, res.stdout, `"id": 7`)

	store := auth.NewFileStore(tokens)
	access, err := store.AccessToken(t.Context())
	require.NoError(t, err)
	refresh, err := store.RefreshToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "fresh", access)
	assert.Equal(t, "r2", refresh)
}

func TestPostSendsDataFromFile(t *testing.T) {
	var gotBody []byte
	var gotMethod, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	payload := filepath.Join(t.TempDir(), "ride.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"pickup":"A"}`), 0o600))

	res := runCLI(t, cliArgs(t, tokenFile(t, auth.TokenPair{}), srv.URL, "post", "/rides", "-d", "@"+payload, "--no-auth")...)

	require.NoError(t, res.err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"pickup":"A"}`, string(gotBody))
	assert.Empty(t, res.stdout)
}

func TestRequestFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/rides":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"invalid ride","errors":{"pickup":["required"],"fare":"must be positive"}}`)
		}
	}))
	defer srv.Close()
	tokens := tokenFile(t, auth.TokenPair{})

	t.Run("not found", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "get", "/missing", "--no-auth")...)

		require.Error(t, res.err)
		assert.True(t, httpclient.IsKind(res.err, httpclient.KindNotFound))
	})

	t.Run("validation prints field errors", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "put", "/rides", "-d", `{}`, "--no-auth")...)

		require.Error(t, res.err)
		assert.True(t, httpclient.IsKind(res.err, httpclient.KindValidation))
		assert.Contains(t, res.err.Error(), "invalid ride")
		assert.Contains(t, res.stderr, "  fare: must be positive\n  pickup: required\n")
	})

	t.Run("bad query", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "get", "/missing", "-q", "novalue")...)
		assert.ErrorContains(t, res.err, "expected key=value")
	})

	t.Run("bad header", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "delete", "/rides/1", "-H", "NoColon")...)
		assert.ErrorContains(t, res.err, "expected \"Name: value\"")
	})

	t.Run("missing data file", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "patch", "/rides/1", "-d", "@/does/not/exist.json")...)
		assert.ErrorContains(t, res.err, "failed to read request body")
	})

	t.Run("path required", func(t *testing.T) {
		res := runCLI(t, cliArgs(t, tokens, srv.URL, "get")...)
		assert.Error(t, res.err)
	})
}

func TestGetAndDeleteHaveNoDataFlag(t *testing.T) {
	root := NewRootCommand("test")
	for _, name := range []string{"get", "delete"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Nil(t, cmd.Flags().Lookup("data"), name)
	}
	for _, name := range []string{"post", "put", "patch"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, cmd.Flags().Lookup("data"), name)
	}
}

func TestTokensCommands(t *testing.T) {
	tokens := filepath.Join(t.TempDir(), "tokens.json")

	res := runCLI(t, "--token-file", tokens, "tokens", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "access_token:  (none)\n")

	res = runCLI(t, "--token-file", tokens, "tokens", "set")
	assert.ErrorContains(t, res.err, "--access or --refresh")

	res = runCLI(t, "--token-file", tokens, "tokens", "set", "--access", testAccessToken, "--refresh", "r1")
	require.NoError(t, res.err)
	assert.Equal(t, "Tokens saved to "+tokens+"\n", res.stdout)

	res = runCLI(t, "--token-file", tokens, "tokens", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "access_token:  ***\n")
	assert.Contains(t, res.stdout, "refresh_token: ***\n")
	assert.NotContains(t, res.stdout, testAccessToken)

	res = runCLI(t, "--token-file", tokens, "tokens", "show", "--reveal")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "access_token:  "+testAccessToken+"\n")

	res = runCLI(t, "--token-file", tokens, "tokens", "clear")
	require.NoError(t, res.err)
	_, err := os.Stat(tokens)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "httppipe.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("redis:\n  password: hunter2\nretry:\n  max_retries: 5\n"), 0o600))

	res := runCLI(t, "--config", cfgFile, "--base-url", "https://api.example.com", "config", "show")

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "client.base_url = https://api.example.com\n")
	assert.Contains(t, res.stdout, "retry.max_retries = 5\n")
	assert.Contains(t, res.stdout, "redis.password = ***\n")
	assert.NotContains(t, res.stdout, "hunter2")
}

func TestConfigShowReadsStdin(t *testing.T) {
	res := runCLIWithInput(t, "client:\n  base_url: https://stdin.example.com\nretry:\n  max_retries: 7\n",
		"--config", "-", "config", "show")

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "client.base_url = https://stdin.example.com\n")
	assert.Contains(t, res.stdout, "retry.max_retries = 7\n")
}

func TestConfigShowRejectsMalformedStdin(t *testing.T) {
	res := runCLIWithInput(t, "retry: [unterminated\n", "--config", "-", "config", "show")
	assert.ErrorContains(t, res.err, "failed to parse configuration")
}

func TestGetWithStdinConfig(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tokens := tokenFile(t, auth.TokenPair{})
	yaml := "client:\n  base_url: " + srv.URL + "\nauth:\n  enabled: false\n"
	res := runCLIWithInput(t, yaml, append([]string{"--config", "-"}, cliArgs(t, tokens, "", "get", "/vehicles")...)...)

	require.NoError(t, res.err)
	assert.Equal(t, "/vehicles", gotPath)
}

func TestGetWithOTelStdoutPrintsSpan(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tokens := tokenFile(t, auth.TokenPair{AccessToken: testAccessToken, RefreshToken: "r1"})
	res := runCLI(t, append([]string{"--otel-stdout"}, cliArgs(t, tokens, srv.URL, "get", "/drivers")...)...)

	require.NoError(t, res.err)
	assert.Equal(t, "{}\n", res.stdout)
	assert.Contains(t, res.stderr, `"Name": "HTTP GET"`)
	assert.Contains(t, res.stderr, `"Value": "/drivers"`)
}

func TestGetWithoutOTelStdoutPrintsNoSpans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tokens := tokenFile(t, auth.TokenPair{AccessToken: testAccessToken, RefreshToken: "r1"})
	res := runCLI(t, cliArgs(t, tokens, srv.URL, "get", "/drivers")...)

	require.NoError(t, res.err)
	assert.NotContains(t, res.stderr, `"Name": "HTTP GET"`)
}

func TestConfigShowInvalidConfig(t *testing.T) {
	res := runCLI(t, "--log-level", "verbose", "config", "show")
	assert.ErrorContains(t, res.err, "invalid configuration")
}

func TestCacheCommands(t *testing.T) {
	tokens := tokenFile(t, auth.TokenPair{})

	res := runCLI(t, cliArgs(t, tokens, "", "cache", "clear")...)
	require.NoError(t, res.err)
	assert.Equal(t, "Cleared memory cache\n", res.stdout)

	res = runCLI(t, cliArgs(t, tokens, "", "cache", "invalidate", "/drivers", "-q", "page=2")...)
	require.NoError(t, res.err)
	assert.Equal(t, "Invalidated GET /drivers\n", res.stdout)

	cfgFile := filepath.Join(t.TempDir(), "httppipe.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("cache:\n  enabled: false\n"), 0o600))
	res = runCLI(t, append([]string{"--config", cfgFile}, cliArgs(t, tokens, "", "cache", "clear")...)...)
	assert.ErrorContains(t, res.err, "cache is disabled")
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, "version")

	require.NoError(t, res.err)
	expected := "pipectl version test\nBuilt with " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + "\n"
	assert.Equal(t, expected, res.stdout)
}

func TestWriteBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		raw      bool
		expected string
	}{
		{name: "empty", body: "", expected: ""},
		{name: "json indented", body: `{"a":1}`, expected: "{\n  \"a\": 1\n}\n"},
		{name: "json raw", body: `{"a":1}`, raw: true, expected: `{"a":1}`},
		{name: "plain text", body: "pong", expected: "pong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeBody(&buf, []byte(tt.body), tt.raw))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestRequestOptionsBuild(t *testing.T) {
	opts := &RequestOptions{
		Query:   []string{"a=1", "a=2", "b="},
		Headers: []string{"X-One: 1", "X-Two:two words "},
		Data:    `{"k":"v"}`,
		NoCache: true,
		NoRetry: true,
		Offline: true,
	}

	req, err := opts.build("/things")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, req.Query["a"])
	assert.Equal(t, []string{""}, req.Query["b"])
	assert.Equal(t, "two words", req.Headers.Get("X-Two"))
	assert.True(t, json.Valid(req.Body))
	assert.True(t, req.Options.SkipCache)
	assert.True(t, req.Options.SkipRetry)
	assert.True(t, req.Options.OfflineAllowed)
	assert.False(t, req.Options.SkipAuth)
}
