// Package visual renders graph path results as standalone vis.js pages.
package visual

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/pkg/logger"
)

// CDNOrigin serves VisJSURL; the API's content security policy allows it.
const (
	CDNOrigin = "https://cdnjs.cloudflare.com"
	VisJSURL  = CDNOrigin + "/ajax/libs/vis/4.21.0/vis.min.js"
)

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
}

type visEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

var page = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <script type="text/javascript" src="{{.Script}}"></script>
  <style>
    #network {
      width: 100%;
      height: 600px;
      border: 1px solid lightgray;
    }
  </style>
</head>
<body>
  <div id="network"></div>
  <script>
    var nodes = new vis.DataSet({{.Nodes}});
    var edges = new vis.DataSet({{.Edges}});

    var container = document.getElementById("network");
    var data = { nodes: nodes, edges: edges };
    var options = {
      nodes: { shape: "dot", size: 20, font: { size: 14 } },
      edges: { arrows: "to", smooth: true },
      physics: { stabilization: false }
    };

    var network = new vis.Network(container, data, options);
  </script>
</body>
</html>
`))

// Render writes an HTML page drawing data.
func Render(w io.Writer, title string, data *graph.Data) error {
	nodes := make([]visNode, 0, len(data.Nodes))
	for _, n := range data.Nodes {
		nodes = append(nodes, visNode{ID: n.ID, Label: n.Caption(), Group: n.Label})
	}

	edges := make([]visEdge, 0, len(data.Edges))
	for _, e := range data.Edges {
		edges = append(edges, visEdge{From: e.From, To: e.To, Label: string(e.Type)})
	}

	return page.Execute(w, struct {
		Title  string
		Script string
		Nodes  []visNode
		Edges  []visEdge
	}{
		Title:  title,
		Script: VisJSURL,
		Nodes:  nodes,
		Edges:  edges,
	})
}

func RenderString(title string, data *graph.Data) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, title, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func WriteFile(path, title string, data *graph.Data) error {
	html, err := RenderString(title, data)
	if err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.Info("Graph visualization saved",
		zap.String("path", path),
		zap.Int("nodes", len(data.Nodes)),
		zap.Int("edges", len(data.Edges)),
	)
	return nil
}
