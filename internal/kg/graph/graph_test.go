package graph

import "testing"

func TestParseEdgeType(t *testing.T) {
	tests := []struct {
		in      string
		want    EdgeType
		wantErr bool
	}{
		{"HAS_SENTIMENT", EdgeHasSentiment, false},
		{"has-sentiment", EdgeHasSentiment, false},
		{" describes ", EdgeDescribes, false},
		{"mentions", EdgeMentions, false},
		{"RELATES) DETACH DELETE n //", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEdgeType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEdgeType(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEdgeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNode_Caption(t *testing.T) {
	cases := []struct {
		node Node
		want string
	}{
		{Node{ID: "1", Properties: map[string]any{"title": "Solar boom", "source": "Reuters"}}, "Solar boom"},
		{Node{ID: "2", Properties: map[string]any{"name": "OpenAI", "type": "ORG"}}, "OpenAI"},
		{Node{ID: "3", Properties: map[string]any{"sentiment": "positive"}}, "positive"},
		{Node{ID: "4", Properties: map[string]any{}}, "4"},
	}
	for _, c := range cases {
		if got := c.node.Caption(); got != c.want {
			t.Errorf("Caption() = %q, want %q", got, c.want)
		}
	}
}
