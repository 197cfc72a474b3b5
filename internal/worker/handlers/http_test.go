package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rishansujesh/jobrun/internal/jobs"
)

func TestRunHTTP_MissingURL(t *testing.T) {
	_, err := RunHTTP(context.Background(), HTTPArgs{Method: "GET"})
	if err == nil {
		t.Fatalf("expected error for missing URL")
	}
}

func TestRunHTTP_PostsJSON(t *testing.T) {
	var gotBody map[string]any
	var gotHeader, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	res, err := RunHTTP(context.Background(), HTTPArgs{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "abc"},
		Body:    map[string]any{"feed": "news"},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Status != 200 || res.Stdout != "accepted" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotHeader != "abc" || gotCT != "application/json" || gotBody["feed"] != "news" {
		t.Fatalf("request not forwarded: header=%q ct=%q body=%v", gotHeader, gotCT, gotBody)
	}
}

func TestRunHTTP_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	res, err := RunHTTP(context.Background(), HTTPArgs{URL: srv.URL})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
	if res.Stdout != "down" {
		t.Fatalf("body lost: %q", res.Stdout)
	}
}

func TestRunHTTP_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	res, err := RunHTTP(context.Background(), HTTPArgs{URL: srv.URL, MaxBodyBytes: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stdout) != 10 {
		t.Fatalf("want 10 bytes kept, got %d", len(res.Stdout))
	}
}

func TestHTTP_WritesStatusLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var out jobs.Output
	if err := HTTP(HTTPArgs{URL: srv.URL})(context.Background(), &jobs.Attempt{Out: &out}); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); !strings.HasPrefix(got, "GET "+srv.URL+" -> 200\n") || !strings.HasSuffix(got, "ok") {
		t.Fatalf("unexpected output %q", got)
	}
}
