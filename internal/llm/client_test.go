package llm

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completionServer(t *testing.T, reply string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			_ = json.Unmarshal(body, &req)
			if req["model"] != "llama-test" {
				t.Errorf("model = %v", req["model"])
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion",
				"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}}},
				"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
			})
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:        url,
		APIKey:         "test",
		Model:          "llama-test",
		EmbeddingModel: "embed-test",
		MaxRetries:     0,
	})
}

func TestGenerate(t *testing.T) {
	srv := completionServer(t, "Solar output rose.", nil)
	defer srv.Close()

	got, err := newTestClient(srv.URL).Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Solar output rose." {
		t.Errorf("got %q", got)
	}
}

func TestClassifySentiment_Normalizes(t *testing.T) {
	cases := map[string]string{
		"Positive.":  "positive",
		" negative ": "negative",
		"mixed":      "",
	}
	for reply, want := range cases {
		srv := completionServer(t, reply, nil)
		got, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "text")
		srv.Close()
		if err != nil {
			t.Fatalf("%q: %v", reply, err)
		}
		if got != want {
			t.Errorf("reply %q: got %q, want %q", reply, got, want)
		}
	}
}

func TestAnswer_KeepsOnlyVerbatimSpans(t *testing.T) {
	passage := "Acme agreed to acquire Beta for $2bn."

	srv := completionServer(t, "acquire Beta", nil)
	got, err := newTestClient(srv.URL).Answer(context.Background(), "q", passage)
	srv.Close()
	if err != nil || got != "acquire Beta" {
		t.Errorf("verbatim: got %q, %v", got, err)
	}

	srv = completionServer(t, "Acme is buying Beta", nil)
	got, err = newTestClient(srv.URL).Answer(context.Background(), "q", passage)
	srv.Close()
	if err != nil || got != "" {
		t.Errorf("paraphrase: got %q, %v", got, err)
	}
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := completionServer(t, "", nil)
	defer srv.Close()

	got, err := newTestClient(srv.URL).EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "bad", Model: "llama-test", MaxRetries: 3})
	if _, err := c.Generate(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestComplete_SendsTemperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature float32
		want        float64
	}{
		{"zero stays deterministic", 0, 0},
		{"configured value", 0.7, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, &body)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "ok"}}},
				})
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, APIKey: "test", Model: "llama-test", Temperature: tt.temperature})
			if _, err := c.Generate(context.Background(), "system", "user"); err != nil {
				t.Fatalf("Generate: %v", err)
			}

			got, ok := body["temperature"].(float64)
			if !ok {
				t.Fatalf("temperature missing from request: %v", body)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("temperature = %v, want %v", got, tt.want)
			}
		})
	}
}
