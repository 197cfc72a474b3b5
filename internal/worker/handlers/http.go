package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rishansujesh/jobrun/internal/jobs"
)

type HTTPArgs struct {
	Method    string            `json:"method" yaml:"method"`
	URL       string            `json:"url" yaml:"url"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body      any               `json:"body,omitempty" yaml:"body,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	// MaxBodyBytes bounds how much of the response is kept as run output.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`
}

func RunHTTP(ctx context.Context, a HTTPArgs) (Result, error) {
	if a.Method == "" {
		a.Method = "GET"
	}
	if a.URL == "" {
		return Result{}, fmt.Errorf("http: url required")
	}
	to := time.Duration(a.TimeoutMS) * time.Millisecond
	if to <= 0 {
		to = 10 * time.Second
	}
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = 64 << 10
	}
	cctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	var bodyReader io.Reader
	if a.Body != nil {
		b, err := json.Marshal(a.Body)
		if err != nil {
			return Result{}, fmt.Errorf("http: body marshal: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(cctx, a.Method, a.URL, bodyReader)
	if err != nil {
		return Result{}, fmt.Errorf("http: new request: %w", err)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && a.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: to}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, limit))
	res := Result{
		Stdout: string(respBody),
		Status: resp.StatusCode,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return res, nil
	}
	return res, fmt.Errorf("http: status %d", resp.StatusCode)
}

// HTTP performs the request on every attempt; the status line and response body become the run output.
func HTTP(a HTTPArgs) jobs.WorkFunc {
	return func(ctx context.Context, at *jobs.Attempt) error {
		res, err := RunHTTP(ctx, a)
		if res.Status != 0 {
			at.Printf("%s %s -> %d\n", methodOrGet(a.Method), a.URL, res.Status)
		}
		if res.Stdout != "" {
			fmt.Fprint(at.Out, res.Stdout)
		}
		return err
	}
}

func methodOrGet(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return m
}
