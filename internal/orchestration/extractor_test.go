package orchestration

import (
	"testing"

	"fixifox/internal/domain/entity"
)

func TestExtractFencedCode(t *testing.T) {
	x := NewResponseExtractor()
	got := x.Extract("```python\ndef f(): return 1\n```", entity.ShapeSourceCode)
	want := entity.CodeResult("def f(): return 1", "python", entity.ConfidenceHigh)
	if got != want {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		content  string
		language string
		kind     entity.ResultKind
		conf     entity.Confidence
	}{
		{
			name:     "prose around fence",
			raw:      "Here is the fix:\n\n```go\nfunc add(a, b int) int {\n\treturn a + b\n}\n```\nThe bug was an off-by-one.",
			content:  "func add(a, b int) int {\n\treturn a + b\n}",
			language: "go",
			kind:     entity.ResultCode,
			conf:     entity.ConfidenceHigh,
		},
		{
			name:    "mermaid fence skipped",
			raw:     "```mermaid\ngraph TD\nA-->B\n```\n```js\nconst x = 1;\n```",
			content: "const x = 1;", language: "javascript",
			kind: entity.ResultCode, conf: entity.ConfidenceHigh,
		},
		{
			name:    "file name tag",
			raw:     "```main.py\nprint('hi')\n```",
			content: "print('hi')", language: "python",
			kind: entity.ResultCode, conf: entity.ConfidenceHigh,
		},
		{
			name:    "unterminated fence",
			raw:     "```python\nimport os\nprint(os.getcwd())",
			content: "import os\nprint(os.getcwd())", language: "python",
			kind: entity.ResultCode, conf: entity.ConfidenceHigh,
		},
		{
			name:    "declaration heuristic",
			raw:     "Sure, the corrected version:\ndef greet(name):\n    return f\"hi {name}\"",
			content: "def greet(name):\n    return f\"hi {name}\"", language: "python",
			kind: entity.ResultCode, conf: entity.ConfidenceLow,
		},
		{
			name:    "no code at all",
			raw:     "I could not understand the request.",
			content: "I could not understand the request.",
			kind:    entity.ResultPlainText, conf: entity.ConfidenceLow,
		},
	}
	x := NewResponseExtractor()
	for _, tt := range tests {
		got := x.Extract(tt.raw, entity.ShapeSourceCode)
		if got.Kind != tt.kind || got.Content != tt.content || got.Language != tt.language || got.Confidence != tt.conf {
			t.Errorf("%s: Extract = %+v, want kind=%v content=%q language=%q confidence=%v",
				tt.name, got, tt.kind, tt.content, tt.language, tt.conf)
		}
	}
}

func TestExtractCodeIdempotent(t *testing.T) {
	x := NewResponseExtractor()
	inputs := []string{
		"```python\ndef f(): return 1\n```",
		"```go\npackage main\n\nfunc main() {}\n```",
		"Fixed:\n```js\nfunction sum(a, b) {\n  return a + b;\n}\n```",
		"```rust\nfn main() {\n    println!(\"hi\");\n}\n```",
		"```python\n# helper\ndef f(): return 1\n```",
		"```python\nx = 1\nprint(x)\n```",
		"```go\n// Package main does x.\npackage main\n```",
		"```python\n#!/usr/bin/env python3\n@cache\ndef f(n):\n    return n\n```",
		"```js\nconsole.log(add(1, 2));\n```",
	}
	for _, raw := range inputs {
		first := x.Extract(raw, entity.ShapeSourceCode)
		if first.Kind != entity.ResultCode || first.Confidence != entity.ConfidenceHigh {
			t.Errorf("Extract(%q) = %+v, want high confidence code", raw, first)
			continue
		}

		// Unfenced code is low confidence and keeps its language only when a
		// declaration names it.
		second := x.Extract(first.Content, entity.ShapeSourceCode)
		if second.Kind != first.Kind || second.Content != first.Content || second.Confidence != entity.ConfidenceLow ||
			(second.Language != "" && second.Language != first.Language) {
			t.Errorf("Extract(Extract(%q).Content) = %+v, want low confidence copy of %+v", raw, second, first)
		}
		if third := x.Extract(second.Content, entity.ShapeSourceCode); third != second {
			t.Errorf("Extract(%q) = %+v, want %+v", second.Content, third, second)
		}
	}
}

func TestExtractCodeKeepsLeadingContext(t *testing.T) {
	tests := []struct {
		raw      string
		content  string
		language string
	}{
		{
			"Here you go:\n# helper\ndef f(): return 1",
			"# helper\ndef f(): return 1", "python",
		},
		{
			"The fixed version is below.\n// Package main does x.\n// It prints.\npackage main",
			"// Package main does x.\n// It prints.\npackage main", "go",
		},
		{
			"Updated file follows here:\n\"\"\"\nHelpers for maths.\n\"\"\"\n@staticmethod\ndef add(a, b):\n    return a + b",
			"\"\"\"\nHelpers for maths.\n\"\"\"\n@staticmethod\ndef add(a, b):\n    return a + b", "python",
		},
		{
			"Use this instead of the old one.\n\n# unrelated\n\ndef g(): pass",
			"def g(): pass", "python",
		},
	}
	x := NewResponseExtractor()
	for _, tt := range tests {
		got := x.Extract(tt.raw, entity.ShapeSourceCode)
		want := entity.CodeResult(tt.content, tt.language, entity.ConfidenceLow)
		if got != want {
			t.Errorf("Extract(%q) = %+v, want %+v", tt.raw, got, want)
		}
	}
}

func TestExtractCodePrefersLanguageFence(t *testing.T) {
	tests := []struct {
		raw      string
		content  string
		language string
	}{
		{
			"Install first:\n```bash\npip install requests\n```\nThen:\n```python\nimport requests\n```",
			"import requests", "python",
		},
		{
			"```json\n{\"a\": 1}\n```\n```text\nok\n```\n```go\nvar a = 1\n```",
			"var a = 1", "go",
		},
		{
			"```bash\nmake test\n```",
			"make test", "bash",
		},
	}
	x := NewResponseExtractor()
	for _, tt := range tests {
		got := x.Extract(tt.raw, entity.ShapeSourceCode)
		if got.Kind != entity.ResultCode || got.Content != tt.content || got.Language != tt.language {
			t.Errorf("Extract(%q) = %+v, want code %q in %q", tt.raw, got, tt.content, tt.language)
		}
	}
}

func TestExtractDiagram(t *testing.T) {
	x := NewResponseExtractor()

	got := x.Extract("Diagram:\n```mermaid\ngraph TD\n  A[Start] --> B[End]\n```", entity.ShapeDiagramSource)
	if got.Kind != entity.ResultDiagram || got.Confidence != entity.ConfidenceHigh || got.Content != "graph TD\n  A[Start] --> B[End]" {
		t.Errorf("Extract(mermaid) = %+v", got)
	}

	got = x.Extract("```\ngraph TD\nA-->B\n```", entity.ShapeDiagramSource)
	if got.Kind != entity.ResultPlainText || got.Confidence != entity.ConfidenceLow {
		t.Errorf("Extract(untagged) = %+v, want low confidence plain text", got)
	}
}

func TestExtractReport(t *testing.T) {
	x := NewResponseExtractor()

	raw := "```json\n{\"status\": \"issues_found\", \"summary\": \"one problem\", \"issues\": [" +
		"{\"type\": \"injection\", \"severity\": \"HIGH\", \"description\": \"SQL built from input\", \"fix\": \"use parameters\", \"line\": \"4\"}]}\n```"
	got := x.Extract(raw, entity.ShapeStructuredReport)
	if got.Kind != entity.ResultReport || got.Confidence != entity.ConfidenceHigh {
		t.Fatalf("Extract(fenced json) = %+v", got)
	}
	if got.Report.Status != entity.ReportStatusIssues || len(got.Report.Issues) != 1 {
		t.Fatalf("report = %+v", got.Report)
	}
	issue := got.Report.Issues[0]
	if issue.Severity != entity.SeverityHigh || issue.Line != 4 || issue.Type != "injection" {
		t.Errorf("issue = %+v", issue)
	}

	got = x.Extract(`Analysis: {"status": "clean", "summary": "fine", "issues": []} done`, entity.ShapeStructuredReport)
	if got.Kind != entity.ResultReport || got.Report.Status != entity.ReportStatusClean {
		t.Errorf("Extract(bare json) = %+v", got)
	}
}

func TestExtractReportSentinel(t *testing.T) {
	x := NewResponseExtractor()
	for _, raw := range []string{
		"NO SECURITY ISSUES DETECTED",
		"After review: no security issues detected.",
		"**No Security Issues Detected**",
	} {
		got := x.Extract(raw, entity.ShapeStructuredReport)
		if got.Kind != entity.ResultReport {
			t.Errorf("Extract(%q).Kind = %v, want %v", raw, got.Kind, entity.ResultReport)
			continue
		}
		if got.Report == nil || got.Report.Issues == nil || len(got.Report.Issues) != 0 {
			t.Errorf("Extract(%q).Report = %+v, want empty issue list", raw, got.Report)
		}
	}
}

func TestExtractReportStrictness(t *testing.T) {
	x := NewResponseExtractor()
	for _, raw := range []string{
		`{"status": "clean", "issues": [], "extra": true}`,
		`{"summary": "no status", "issues": []}`,
		`{"status": "issues_found", "issues": [{"type": "xss"}]}`,
		`{"status": "clean", "issues": [}`,
		"Looks mostly fine, a couple of style nits.",
	} {
		got := x.Extract(raw, entity.ShapeStructuredReport)
		if got.Kind != entity.ResultPlainText || got.Confidence != entity.ConfidenceLow {
			t.Errorf("Extract(%q) = %+v, want low confidence plain text", raw, got)
		}
	}
}

func TestExtractRawText(t *testing.T) {
	x := NewResponseExtractor()
	got := x.Extract("  This code prints a greeting.\n", entity.ShapeRawText)
	want := entity.PlainTextResult("This code prints a greeting.", entity.ConfidenceHigh)
	if got != want {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
}
