package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, APIKey: "test-key", Retries: 1})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "renewable energy" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if q.Get("language") != "en" || q.Get("sortBy") != "relevancy" {
			t.Errorf("language/sortBy = %q/%q", q.Get("language"), q.Get("sortBy"))
		}
		if q.Get("pageSize") != "30" || q.Get("page") != "1" {
			t.Errorf("pageSize/page = %q/%q", q.Get("pageSize"), q.Get("page"))
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":2,"articles":[
			{"title":"Solar surges","description":"<p>Solar</p>","content":"Solar power grew.","publishedAt":"2024-03-01T10:00:00Z","source":{"id":null,"name":"Reuters"},"url":"https://example.com/a"},
			{"title":"Wind","source":{"name":"AP"}}
		]}`))
	}))
	defer srv.Close()

	articles, err := newTestClient(srv.URL).Fetch(context.Background(), "renewable energy", 1, 30)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("len = %d, want 2", len(articles))
	}
	if *articles[0].Title != "Solar surges" || *articles[0].Source.Name != "Reuters" {
		t.Errorf("first article = %+v", articles[0])
	}
	if articles[1].PublishedAt != nil {
		t.Errorf("missing publishedAt should decode to nil")
	}
}

func TestFetch_NonSuccessIsAPIError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), "x", 1, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Your API key is invalid." {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, non-2xx must not be retried", calls)
	}
}

func TestErrorMessage_FallsBackToBody(t *testing.T) {
	if got := errorMessage([]byte("gateway down")); got != "gateway down" {
		t.Errorf("errorMessage = %q", got)
	}
}
