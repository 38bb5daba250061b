// Command chat runs one topic through ingestion and then answers questions
// about it on the terminal until the exit keyword is entered.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/app"
	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/visual"
	"github.com/newsgraph/backend/pkg/config"
	appLogger "github.com/newsgraph/backend/pkg/logger"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// realMain returns the process exit code after its deferred cleanup has run.
func realMain(args []string, in io.Reader, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(errOut)
	graphs := fs.Bool("graphs", false, "write sentiment and relationship graph pages after ingestion")
	topic := fs.String("topic", "", "search topic; prompted for when empty")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "Failed to load config: %v\n", err)
		return 1
	}

	// Log to stderr so answers on stdout stay readable.
	if cfg.Logging.OutputPath == "stdout" {
		cfg.Logging.OutputPath = "stderr"
	}
	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(errOut, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Error("Failed to initialize application", zap.Error(err))
		return 1
	}
	defer application.Close()

	if err := run(ctx, application, *topic, *graphs, in, out); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, a *app.App, topic string, graphs bool, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if strings.TrimSpace(topic) == "" {
		fmt.Fprint(out, "Enter search topic: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		topic = scanner.Text()
	}

	result, err := a.StartTopic(ctx, topic)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Indexed %d articles (%d chunks) for %q.\n", len(result.Articles), result.Index.Chunks(), result.Topic)
	if result.GraphErr != nil {
		fmt.Fprintln(out, "Warning: the knowledge graph could not be updated.")
	}

	if graphs {
		if err := writeGraphs(ctx, a, a.Config.Chat.GraphOutputDir); err != nil {
			appLogger.Warn("Failed to write graph pages", zap.Error(err))
		}
	}

	exit := a.Config.Chat.ExitKeyword
	for {
		fmt.Fprintf(out, "Enter your query (or '%s' to quit): ", exit)
		if !scanner.Scan() {
			return scanner.Err()
		}

		query := scanner.Text()
		if strings.TrimSpace(query) == "" {
			continue
		}

		answer, err := a.Session.Ask(ctx, query)
		if errors.Is(err, chat.ErrExit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to answer query: %w", err)
		}
		fmt.Fprintf(out, "Response:\n%s\n", answer.Response)
	}
}

func writeGraphs(ctx context.Context, a *app.App, dir string) error {
	pages := []struct {
		edge  graph.EdgeType
		title string
		file  string
	}{
		{graph.EdgeHasSentiment, "Sentiment graph", "sentiment_graph.html"},
		{graph.EdgeDescribes, "Relationship graph", "relationship_graph.html"},
	}

	for _, p := range pages {
		data, err := a.Paths(ctx, p.edge)
		if err != nil {
			return err
		}
		if err := visual.WriteFile(filepath.Join(dir, p.file), p.title, data); err != nil {
			return err
		}
	}
	return nil
}
