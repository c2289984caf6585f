package feedback

import (
	"strings"
	"testing"

	"github.com/afterword/afterword/internal/model"
)

const essay = `My summer was good.
I went to the beach and it was good.
My summer was good.`

func testAnalysis() *model.Analysis {
	return &model.Analysis{
		ID: "a1",
		SentenceComments: []model.SentenceComment{
			{ID: "c1", OriginalText: "My summer was good.", Severity: model.SeverityHigh, Title: "Vague opener"},
			{ID: "c2", OriginalText: "it was good", Severity: model.SeverityMedium, Title: "Repetition"},
			{ID: "c3", OriginalText: "My summer was good.", Severity: model.SeverityLow, Title: "Weak closer"},
			{ID: "c4", OriginalText: "A sentence I deleted.", Severity: model.SeverityHigh, Title: "Run-on"},
		},
	}
}

func TestLocate(t *testing.T) {
	spans := Locate(essay, testAnalysis().SentenceComments)

	want := []int{1, 2, 3, 0}
	for i, line := range want {
		if spans[i].Line != line {
			t.Errorf("comment %d: expected line %d, got %d", i, line, spans[i].Line)
		}
	}
	if got := essay[spans[1].Start:spans[1].End]; got != "it was good" {
		t.Errorf("unexpected span text %q", got)
	}
	if spans[0].Start == spans[2].Start {
		t.Error("repeated sentence should map to distinct occurrences")
	}
	if spans[3].Found() {
		t.Error("deleted text should not be found")
	}
}

func TestStale(t *testing.T) {
	stale := Stale(essay, testAnalysis().SentenceComments)
	if len(stale) != 1 || stale[0].ID != "c4" {
		t.Fatalf("expected only c4 stale, got %v", stale)
	}
}

func TestRun(t *testing.T) {
	in := Input{
		Content:  essay,
		Analysis: testAnalysis(),
		Markings: model.Markings{
			"c1": {Action: model.ActionResolved},
			"c4": {Action: model.ActionRejected},
		},
	}

	results := Run(in, nil)

	byComment := results.ByComment()
	if len(byComment["c2"]) != 1 || byComment["c2"][0].Pass != "unmarked" {
		t.Errorf("expected c2 unmarked, got %v", byComment["c2"])
	}
	if len(byComment["c1"]) != 1 || byComment["c1"][0].Pass != "unchanged" {
		t.Errorf("expected c1 resolved-but-unchanged, got %v", byComment["c1"])
	}
	if len(byComment["c4"]) != 1 || byComment["c4"][0].Pass != "stale" {
		t.Errorf("expected c4 stale, got %v", byComment["c4"])
	}

	if results.MaxSeverity() != model.SeverityMedium {
		t.Errorf("expected max severity medium, got %s", results.MaxSeverity())
	}
	if got := len(results.BySeverity(model.SeverityMedium)); got != 2 {
		t.Errorf("expected 2 findings at medium or above, got %d", got)
	}

	for i := 1; i < len(results.Findings); i++ {
		if results.Findings[i-1].Line > results.Findings[i].Line {
			t.Errorf("findings not ordered by line: %v", results.Findings)
		}
	}
}

func TestRunSkip(t *testing.T) {
	in := Input{Content: essay, Analysis: testAnalysis()}
	results := Run(in, []string{"unmarked", "stale"})
	if len(results.Findings) != 0 {
		t.Errorf("expected no findings, got %v", results.Findings)
	}
}

func TestRunWithoutAnalysis(t *testing.T) {
	results := Run(Input{Content: essay}, nil)
	if results.Summary() != "No open feedback" {
		t.Errorf("unexpected summary %q", results.Summary())
	}
}

func TestSummary(t *testing.T) {
	r := &Results{Findings: []Finding{
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityHigh},
		{Severity: model.SeverityLow},
	}}
	if got := r.Summary(); got != "2 high, 1 low" {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"Hello world", 2},
		{"你好世界", 4},
		{"Hello 世界", 3},
		{"line one\nline two\ttabbed", 5},
	}
	for _, tt := range tests {
		if got := CountWords(tt.in); got != tt.want {
			t.Errorf("CountWords(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFindingString(t *testing.T) {
	f := Finding{Pass: "stale", CommentID: "c9", Line: 4, Message: "gone"}
	if !strings.Contains(f.String(), "c9@4") {
		t.Errorf("unexpected string %q", f.String())
	}
}
