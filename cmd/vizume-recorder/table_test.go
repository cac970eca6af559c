package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Kaplaugher/vizume/internal/handoff"
)

func TestRenderTableNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"Kind", "Label"}, [][]string{
		{"video-input", "FaceTime HD"},
		{"audio-input"},
	}, []columnAlignment{alignLeft, alignRight})

	if !strings.Contains(out, "FaceTime HD") {
		t.Fatalf("missing row:\n%s", out)
	}
	if strings.Contains(out, "╭") {
		t.Fatalf("non-terminal output should not use rounded borders:\n%s", out)
	}
	if strings.Count(out, "\n") < 2 {
		t.Fatalf("expected header and two rows:\n%s", out)
	}
}

func TestRenderTableNoHeaders(t *testing.T) {
	if got := renderTable(&bytes.Buffer{}, nil, [][]string{{"x"}}, nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestPrintEntry(t *testing.T) {
	var buf bytes.Buffer
	printEntry(&buf, handoff.Entry{
		URL:      "file:///tmp/a.webm",
		Name:     handoff.DefaultName,
		Type:     "video/webm",
		Size:     2048,
		Duration: 1.25,
	})
	out := buf.String()
	for _, want := range []string{"file:///tmp/a.webm", handoff.DefaultName, "2.0 kB", "2048 bytes", "1.3s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
