package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/internal/vector"
)

type fakeGenerator struct {
	prompts []string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, user)
	return fmt.Sprintf("answer %d", len(g.prompts)), nil
}

type fakeIndex struct {
	results []vector.Result
	k       int
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]vector.Result, error) {
	f.k = k
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

type memRecorder struct {
	turns []*models.ChatTurn
	err   error
}

func (m *memRecorder) InsertChatTurn(t *models.ChatTurn) error {
	if m.err != nil {
		return m.err
	}
	m.turns = append(m.turns, t)
	return nil
}

func newActive(gen Generator, rec Recorder, cfg Config) (*Session, *fakeIndex) {
	idx := &fakeIndex{results: []vector.Result{{Text: "Solar chunk"}, {Text: "Wind chunk"}}}
	s := NewSession(gen, rec, cfg)
	s.Activate("topic-1", "renewable energy", idx)
	return s, idx
}

func TestAsk_IdleBeforeActivate(t *testing.T) {
	s := NewSession(&fakeGenerator{}, nil, Config{})
	if _, err := s.Ask(context.Background(), "hello"); !errors.Is(err, ErrIdle) {
		t.Errorf("err = %v, want ErrIdle", err)
	}
}

func TestAsk_ExitDoesNotCallModel(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newActive(gen, nil, Config{})

	for _, q := range []string{"EXIT", " Exit "} {
		s.Activate("t", "topic", &fakeIndex{})
		if _, err := s.Ask(context.Background(), q); !errors.Is(err, ErrExit) {
			t.Fatalf("%q: err = %v, want ErrExit", q, err)
		}
		if s.State() != StateIdle {
			t.Errorf("state = %s, want idle", s.State())
		}
	}
	if len(gen.prompts) != 0 {
		t.Errorf("model called %d times", len(gen.prompts))
	}
}

func TestAsk_BuildsPromptFromContextAndHistory(t *testing.T) {
	gen := &fakeGenerator{}
	rec := &memRecorder{}
	s, idx := newActive(gen, rec, Config{})

	if _, err := s.Ask(context.Background(), "What happened to solar?"); err != nil {
		t.Fatal(err)
	}
	ans, err := s.Ask(context.Background(), "And wind?")
	if err != nil {
		t.Fatal(err)
	}

	if idx.k != 8 {
		t.Errorf("k = %d, want default 8", idx.k)
	}
	if ans.Response != "answer 2" || ans.Chunks != 2 || ans.TopicID != "topic-1" {
		t.Errorf("answer = %+v", ans)
	}

	second := gen.prompts[1]
	for _, want := range []string{
		"Chat History:\nUser: What happened to solar?\nAssistant: answer 1",
		"Context:\nSolar chunk\n\nWind chunk",
		"Question:\nAnd wind?",
	} {
		if !strings.Contains(second, want) {
			t.Errorf("prompt missing %q:\n%s", want, second)
		}
	}

	if len(s.History()) != 2 || len(rec.turns) != 2 {
		t.Errorf("history=%d recorded=%d", len(s.History()), len(rec.turns))
	}
}

func TestAsk_HistoryWindow(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newActive(gen, nil, Config{MaxHistoryTurns: 2})

	for i := 0; i < 4; i++ {
		if _, err := s.Ask(context.Background(), fmt.Sprintf("q%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	h := s.History()
	if len(h) != 2 || h[0].Query != "q2" || h[1].Query != "q3" {
		t.Errorf("history = %+v", h)
	}
	if strings.Contains(gen.prompts[3], "q0") {
		t.Error("evicted turn leaked into prompt")
	}
}

func TestAsk_UnboundedHistory(t *testing.T) {
	s, _ := newActive(&fakeGenerator{}, nil, Config{MaxHistoryTurns: 0})
	for i := 0; i < 30; i++ {
		_, _ = s.Ask(context.Background(), "q")
	}
	if len(s.History()) != 30 {
		t.Errorf("history = %d", len(s.History()))
	}
}

func TestAsk_GenerationErrorLeavesHistory(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	s, _ := newActive(gen, nil, Config{})

	if _, err := s.Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if len(s.History()) != 0 || s.State() != StateAnswering {
		t.Errorf("history=%d state=%s", len(s.History()), s.State())
	}
}

func TestAsk_RecorderFailureIgnored(t *testing.T) {
	s, _ := newActive(&fakeGenerator{}, &memRecorder{err: errors.New("disk full")}, Config{})
	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestActivate_ResetsHistory(t *testing.T) {
	s, _ := newActive(&fakeGenerator{}, nil, Config{})
	_, _ = s.Ask(context.Background(), "q")
	s.Activate("topic-2", "oil", &fakeIndex{})

	if len(s.History()) != 0 {
		t.Error("history should be cleared")
	}
	if id, topic := s.Topic(); id != "topic-2" || topic != "oil" {
		t.Errorf("topic = %s/%s", id, topic)
	}
}

func TestFormatHistory(t *testing.T) {
	got := FormatHistory([]Turn{{"a", "b"}, {"c", "d"}})
	if got != "User: a\nAssistant: b\nUser: c\nAssistant: d" {
		t.Errorf("got %q", got)
	}
	if FormatHistory(nil) != "" {
		t.Error("empty history should serialize to empty string")
	}
}
