// Package diff builds and parses unified diffs between essay versions.
package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines shown around each change.
const DefaultContext = 3

// File is one side-by-side comparison with its parsed fragments.
type File struct {
	OldName      string
	NewName      string
	Fragments    []*gitdiff.TextFragment
	AddedLines   int
	DeletedLines int
}

// Name returns the display name for the comparison.
func (f *File) Name() string {
	if f.OldName != "" && f.NewName != "" && f.OldName != f.NewName {
		return fmt.Sprintf("%s → %s", f.OldName, f.NewName)
	}
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}

// DiffSet holds the parsed diff.
type DiffSet struct {
	Files []*File
	Raw   string // the raw unified diff text
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// Empty reports whether the diff has no changes.
func (ds *DiffSet) Empty() bool {
	return len(ds.Files) == 0
}

// Parse reads a unified diff string and returns a DiffSet.
func Parse(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	ds := &DiffSet{Raw: raw}
	for _, f := range parsed {
		df := &File{
			OldName: f.OldName,
			NewName: f.NewName,
		}
		for _, frag := range f.TextFragments {
			df.Fragments = append(df.Fragments, frag)
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					df.AddedLines++
				case gitdiff.OpDelete:
					df.DeletedLines++
				}
			}
		}
		ds.Files = append(ds.Files, df)
	}

	return ds, nil
}

// Versions compares two texts line by line and returns the result as a
// parsed DiffSet. Names label the two sides, e.g. "v2" and "v4".
func Versions(oldName, newName, oldText, newText string, context int) (*DiffSet, error) {
	raw := Unified(oldName, newName, oldText, newText, context)
	if raw == "" {
		return &DiffSet{}, nil
	}
	return Parse(raw)
}

type lineOp struct {
	op   gitdiff.LineOp
	text string
}

// Unified renders a git-style unified diff of two texts. It returns "" when
// the texts are equal. A missing trailing newline is ignored.
func Unified(oldName, newName, oldText, newText string, context int) string {
	if context < 0 {
		context = DefaultContext
	}
	oldText, newText = withNewline(oldText), withNewline(newText)
	if oldText == newText {
		return ""
	}

	ops := lineDiff(oldText, newText)

	var b strings.Builder
	oldName, newName = headerName(oldName), headerName(newName)
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", oldName, newName)
	fmt.Fprintf(&b, "--- a/%s\n", oldName)
	fmt.Fprintf(&b, "+++ b/%s\n", newName)

	for _, h := range hunks(ops, context) {
		writeHunk(&b, ops, h)
	}
	return b.String()
}

func lineDiff(oldText, newText string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var ops []lineOp
	for _, d := range diffs {
		op := gitdiff.OpContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = gitdiff.OpAdd
		case diffmatchpatch.DiffDelete:
			op = gitdiff.OpDelete
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				ops = append(ops, lineOp{op: op, text: line})
			}
		}
	}
	return ops
}

// hunk is a half-open range of ops.
type hunk struct{ start, end int }

func hunks(ops []lineOp, context int) []hunk {
	var out []hunk
	for i, op := range ops {
		if op.op == gitdiff.OpContext {
			continue
		}
		start := max(0, i-context)
		end := min(len(ops), i+context+1)
		if n := len(out); n > 0 && start <= out[n-1].end {
			out[n-1].end = max(out[n-1].end, end)
			continue
		}
		out = append(out, hunk{start, end})
	}
	return out
}

func writeHunk(b *strings.Builder, ops []lineOp, h hunk) {
	// line numbers of the first op in the hunk
	oldLine, newLine := 1, 1
	for _, op := range ops[:h.start] {
		if op.op != gitdiff.OpAdd {
			oldLine++
		}
		if op.op != gitdiff.OpDelete {
			newLine++
		}
	}

	var oldCount, newCount int
	for _, op := range ops[h.start:h.end] {
		if op.op != gitdiff.OpAdd {
			oldCount++
		}
		if op.op != gitdiff.OpDelete {
			newCount++
		}
	}
	if oldCount == 0 {
		oldLine--
	}
	if newCount == 0 {
		newLine--
	}

	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldLine, oldCount, newLine, newCount)
	for _, op := range ops[h.start:h.end] {
		b.WriteString(op.op.String())
		b.WriteString(op.text)
	}
}

func withNewline(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}

func headerName(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return "essay"
	}
	return name
}
