package ghimmohmohctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	method string
	path   string
	// textField is printed verbatim in text output mode.
	textField string
}

var commands = map[string]command{
	"health":     {method: http.MethodGet, path: "/v1/health"},
	"ready":      {method: http.MethodGet, path: "/v1/ready"},
	"prompt":     {method: http.MethodGet, path: "/v1/prompt", textField: "system_prompt"},
	"context":    {method: http.MethodGet, path: "/v1/prompt/context", textField: "context"},
	"refresh":    {method: http.MethodPost, path: "/v1/prompt/refresh", textField: "context"},
	"invalidate": {method: http.MethodPost, path: "/v1/prompt/invalidate"},
	"archive":    {method: http.MethodPost, path: "/v1/prompt/archive"},
	"latest":     {method: http.MethodGet, path: "/v1/prompt/archive/latest", textField: "system_prompt"},
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("ghimmohmohctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "Ghimmohmoh API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	output := fs.String("output", "json", "output format: json or text")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *output != "json" && *output != "text" {
		_, _ = fmt.Fprintf(stderr, "invalid -output %q: want json or text\n", *output)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + cmd.path
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *output == "text" && cmd.textField != "" {
		if text, ok := stringField(responseBody, cmd.textField); ok {
			_, _ = fmt.Fprintln(stdout, text)
			return 0
		}
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func stringField(raw []byte, field string) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}
	value, ok := payload[field].(string)
	return value, ok
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: ghimmohmohctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health       GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready        GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  prompt       GET /v1/prompt")
	_, _ = fmt.Fprintln(w, "  context      GET /v1/prompt/context")
	_, _ = fmt.Fprintln(w, "  refresh      POST /v1/prompt/refresh")
	_, _ = fmt.Fprintln(w, "  invalidate   POST /v1/prompt/invalidate")
	_, _ = fmt.Fprintln(w, "  archive      POST /v1/prompt/archive")
	_, _ = fmt.Fprintln(w, "  latest       GET /v1/prompt/archive/latest")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
