package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/markdave123-py/docqa/internal/core"
)

type fakeRecognizer struct {
	text  string
	err   error
	calls int
}

func (f *fakeRecognizer) Recognize(context.Context, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func staticSource(text string) textSource {
	return textSource{name: "static", extract: func(context.Context, []byte) (string, error) {
		return text, nil
	}}
}

var longText = strings.Repeat("This agreement is governed by the laws of the state. ", 3)

func TestExtractorUsesStructuralText(t *testing.T) {
	rec := &fakeRecognizer{text: "unused"}
	e := NewPDFExtractor(rec, 50, true)
	e.sources = []textSource{staticSource("  " + longText + "\r\n")}

	got, err := e.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if got != strings.TrimSpace(longText) {
		t.Fatalf("got %q", got)
	}
	if rec.calls != 0 {
		t.Fatal("recognizer ran although structural text was sufficient")
	}
}

func TestExtractorPicksLongestSource(t *testing.T) {
	e := NewPDFExtractor(nil, 500, false)
	e.sources = []textSource{staticSource("short"), staticSource(longText)}
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	if !errors.Is(err, core.ErrImageBasedUnsupported) {
		t.Fatalf("got %v", err)
	}

	e.minTextLength = 50
	got, err := e.Extract(context.Background(), []byte("%PDF"))
	if err != nil || got != strings.TrimSpace(longText) {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestExtractorFastModeRejectsImageBased(t *testing.T) {
	rec := &fakeRecognizer{text: longText}
	e := NewPDFExtractor(rec, 50, false)
	e.sources = []textSource{staticSource("   ")}

	_, err := e.Extract(context.Background(), []byte("%PDF"))
	if !errors.Is(err, core.ErrImageBasedUnsupported) {
		t.Fatalf("got %v, want ErrImageBasedUnsupported", err)
	}
	if rec.calls != 0 {
		t.Fatal("recognizer ran in fast mode")
	}
}

func TestExtractorFallsBackToRecognizer(t *testing.T) {
	rec := &fakeRecognizer{text: longText}
	e := NewPDFExtractor(rec, 50, true)
	e.sources = []textSource{staticSource("scan")}

	got, err := e.Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if got != strings.TrimSpace(longText) || rec.calls != 1 {
		t.Fatalf("got %q after %d calls", got, rec.calls)
	}
}

func TestExtractorRecognizerFailures(t *testing.T) {
	tests := []struct {
		name string
		rec  *fakeRecognizer
	}{
		{"error", &fakeRecognizer{err: errors.New("quota")}},
		{"timeout", &fakeRecognizer{err: core.ErrProviderTimeout}},
		{"too short", &fakeRecognizer{text: "page 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewPDFExtractor(tt.rec, 50, true)
			e.sources = []textSource{staticSource("")}
			_, err := e.Extract(context.Background(), []byte("%PDF"))
			if !errors.Is(err, core.ErrExtractionFailed) {
				t.Fatalf("got %v, want ErrExtractionFailed", err)
			}
		})
	}
}

func TestExtractorGarbageInputReachesRecognizer(t *testing.T) {
	rec := &fakeRecognizer{text: longText}
	e := NewPDFExtractor(rec, 50, true)
	e.sources = e.sources[1:] // the pure-Go reader only

	if _, err := e.Extract(context.Background(), []byte("definitely not a pdf")); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 {
		t.Fatalf("recognizer calls = %d, want 1", rec.calls)
	}
}

func TestExtractorEmptyInput(t *testing.T) {
	_, err := NewPDFExtractor(nil, 50, true).Extract(context.Background(), nil)
	if !errors.Is(err, core.ErrExtractionFailed) {
		t.Fatalf("got %v", err)
	}
}
