package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/newsgraph/backend/internal/app"
	"github.com/newsgraph/backend/pkg/config"
)

func newsServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "solar power" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":1,"articles":[{
			"source":{"id":null,"name":"Wire"},
			"title":"Solar output hits record",
			"description":"<p>Solar farms in Spain produced record power.</p>",
			"content":"Solar farms in Spain produced record power this week.",
			"url":"https://example.com/solar",
			"publishedAt":"2024-05-01T10:00:00Z"}]}`))
	}))
}

// llmServer answers chat completions according to the system prompt.
// With failChat set, the answering call gets a 400.
func llmServer(t *testing.T, failChat bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}

		system := req.Messages[0].Content
		reply := "Spanish solar farms set a record."
		switch {
		case strings.Contains(system, "sentiment"):
			reply = "positive"
		case strings.Contains(system, "copying the shortest span"):
			reply = "produced record power"
		case failChat:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"context too long","type":"invalid_request_error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   "test",
			"choices": []map[string]interface{}{{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func newApp(t *testing.T, failChat bool) *app.App {
	t.Helper()
	news := newsServer(t)
	t.Cleanup(news.Close)
	llm := llmServer(t, failChat)
	t.Cleanup(llm.Close)

	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg.News.BaseURL = news.URL
	cfg.LLM.BaseURL = llm.URL
	cfg.NLP.Entities = "prose"
	cfg.NLP.Sentiment = "llm"
	cfg.NLP.Relationship = "llm"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 64
	cfg.Graph.Backend = "memory"
	cfg.Vector.Backend = "memory"
	cfg.SQLite.Path = filepath.Join(dir, "chat.db")
	cfg.Chat.GraphOutputDir = dir

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRun_TopicThenQuestions(t *testing.T) {
	a := newApp(t, false)
	in := strings.NewReader("solar power\nWhat happened in Spain?\n\nexit\nignored\n")
	var out bytes.Buffer

	if err := run(context.Background(), a, "", true, in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Enter search topic: ",
		"Indexed 1 articles",
		"Response:\nSpanish solar farms set a record.\n",
		"(or 'exit' to quit)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "Response:") != 1 {
		t.Errorf("expected exactly one answer:\n%s", got)
	}

	history := a.Session.History()
	if len(history) != 1 || history[0].Query != "What happened in Spain?" {
		t.Errorf("history = %+v", history)
	}

	for _, name := range []string{"sentiment_graph.html", "relationship_graph.html"} {
		page, err := os.ReadFile(filepath.Join(a.Config.Chat.GraphOutputDir, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(string(page), "vis.Network") {
			t.Errorf("%s is not a graph page", name)
		}
	}

	topicID, _ := a.Session.Topic()
	turns, err := a.Store.GetChatTurns(topicID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Response != "Spanish solar farms set a record." {
		t.Errorf("persisted turns = %+v", turns)
	}
}

func TestRun_TopicFlagSkipsPrompt(t *testing.T) {
	a := newApp(t, false)
	var out bytes.Buffer

	if err := run(context.Background(), a, "solar power", false, strings.NewReader("exit\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(out.String(), "Enter search topic") {
		t.Error("topic flag should skip the topic prompt")
	}
}

func TestRun_AnswerFailureEndsSession(t *testing.T) {
	a := newApp(t, true)
	var out bytes.Buffer

	err := run(context.Background(), a, "solar power", false, strings.NewReader("What happened?\nexit\n"), &out)
	if err == nil {
		t.Fatal("expected the answering failure to end the loop")
	}
	if strings.Contains(out.String(), "Response:") {
		t.Errorf("no response should be printed:\n%s", out.String())
	}
	if len(a.Session.History()) != 0 {
		t.Error("history must not grow on failure")
	}
}

func TestStartTopic_ReleasesReplacedIndex(t *testing.T) {
	a := newApp(t, false)
	ctx := context.Background()

	first, err := a.StartTopic(ctx, "solar power")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.StartTopic(ctx, "solar power")
	if err != nil {
		t.Fatal(err)
	}

	old, err := first.Index.Search(ctx, "solar", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 0 {
		t.Errorf("replaced index should be released, got %d results", len(old))
	}
	current, err := second.Index.Search(ctx, "solar", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(current) != 1 {
		t.Errorf("active index results = %d, want 1", len(current))
	}
}

// writeConfig points config.Load at the fake servers through a config.yaml
// in a fresh working directory.
func writeConfig(t *testing.T, failChat bool) {
	t.Helper()
	news := newsServer(t)
	t.Cleanup(news.Close)
	llm := llmServer(t, failChat)
	t.Cleanup(llm.Close)

	dir := t.TempDir()
	yaml := "news:\n  baseURL: " + news.URL + "\n" +
		"llm:\n  baseURL: " + llm.URL + "\n" +
		"nlp:\n  entities: prose\n  sentiment: llm\n  relationship: llm\n" +
		"embedding:\n  provider: hash\n  dimensions: 64\n" +
		"graph:\n  backend: memory\n" +
		"vector:\n  backend: memory\n" +
		"sqlite:\n  path: " + filepath.Join(dir, "chat.db") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestRealMain_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		failChat bool
		args     []string
		want     int
	}{
		{"answered", false, []string{"-topic", "solar power"}, 0},
		{"answer fails", true, []string{"-topic", "solar power"}, 1},
		{"bad flag", false, []string{"-nope"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.failChat)
			var out, errOut bytes.Buffer

			code := realMain(tt.args, strings.NewReader("What happened?\nexit\n"), &out, &errOut)
			if code != tt.want {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.want, errOut.String())
			}
			if tt.want == 0 && !strings.Contains(out.String(), "Response:") {
				t.Errorf("missing answer:\n%s", out.String())
			}
		})
	}
}
