package orchestration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"fixifox/internal/domain/entity"
)

// DefaultSentinels are "nothing found" phrases that make an explicit empty
// report when the text is not a parsable report.
var DefaultSentinels = []string{
	entity.NoIssuesSentinel,
	"NO SECURITY ISSUES FOUND",
	"NO VULNERABILITIES DETECTED",
	"NO VULNERABILITIES FOUND",
	"NO ISSUES FOUND",
	"NO ISSUES DETECTED",
}

// ResponseExtractor turns raw backend text into a typed result.
type ResponseExtractor struct {
	sentinels []string
}

func NewResponseExtractor(sentinels ...string) *ResponseExtractor {
	if len(sentinels) == 0 {
		sentinels = DefaultSentinels
	}
	norm := make([]string, 0, len(sentinels))
	for _, s := range sentinels {
		if n := normalize(s); n != "" {
			norm = append(norm, n)
		}
	}
	return &ResponseExtractor{sentinels: norm}
}

// Extract never fails: when no structured shape is found, confidence drops
// and the raw text is passed through.
func (e *ResponseExtractor) Extract(raw string, shape entity.PayloadShape) (res entity.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = entity.PlainTextResult(raw, entity.ConfidenceLow)
		}
	}()

	text := strings.TrimSpace(raw)
	switch shape {
	case entity.ShapeSourceCode:
		return e.extractCode(text)
	case entity.ShapeDiagramSource:
		return e.extractDiagram(text)
	case entity.ShapeStructuredReport:
		return e.extractReport(text)
	default:
		// nothing to extract for plain text, the variant always matches
		return entity.PlainTextResult(text, entity.ConfidenceHigh)
	}
}

// auxiliaryFences hold commands, logs or data next to the answer, not the
// answer itself.
var auxiliaryFences = map[string]bool{
	"": true, "bash": true, "sh": true, "shell": true, "zsh": true, "console": true,
	"terminal": true, "text": true, "txt": true, "plaintext": true, "output": true,
	"log": true, "json": true,
}

// extractCode prefers a fence tagged with a real language, then any fence,
// then unfenced text that reads as code. Unfenced code keeps its leading
// comments and is always low confidence, so extracting a result's content
// again gives the same kind and content.
func (e *ResponseExtractor) extractCode(text string) entity.ExtractionResult {
	fences := fencedBlocks(text)
	for _, aux := range []bool{false, true} {
		for _, f := range fences {
			if f.tag == "mermaid" || auxiliaryFences[f.tag] != aux || strings.TrimSpace(f.content) == "" {
				continue
			}
			return entity.CodeResult(strings.TrimSpace(f.content), fenceLanguage(f.tag), entity.ConfidenceHigh)
		}
	}
	if looksLikeCode(text) {
		_, lang, _ := declarationRegion(text)
		return entity.CodeResult(text, lang, entity.ConfidenceLow)
	}
	if code, lang, ok := declarationRegion(text); ok {
		return entity.CodeResult(code, lang, entity.ConfidenceLow)
	}
	return entity.PlainTextResult(text, entity.ConfidenceLow)
}

func (e *ResponseExtractor) extractDiagram(text string) entity.ExtractionResult {
	for _, f := range fencedBlocks(text) {
		if f.tag != "mermaid" {
			continue
		}
		if body := strings.TrimSpace(f.content); body != "" {
			return entity.DiagramResult(body, entity.ConfidenceHigh)
		}
	}
	return entity.PlainTextResult(text, entity.ConfidenceLow)
}

func (e *ResponseExtractor) extractReport(text string) entity.ExtractionResult {
	for _, f := range fencedBlocks(text) {
		if f.tag != "" && f.tag != "json" {
			continue
		}
		if r, err := parseReport(f.content); err == nil {
			return entity.ReportResult(r, entity.ConfidenceHigh)
		}
	}
	if r, err := parseReport(text); err == nil {
		return entity.ReportResult(r, entity.ConfidenceHigh)
	}
	if e.hasSentinel(text) {
		return entity.ReportResult(entity.Report{Status: entity.ReportStatusClean}, entity.ConfidenceHigh)
	}
	return entity.PlainTextResult(text, entity.ConfidenceLow)
}

func (e *ResponseExtractor) hasSentinel(text string) bool {
	norm := normalize(text)
	for _, s := range e.sentinels {
		if strings.Contains(norm, s) {
			return true
		}
	}
	return false
}

type fence struct {
	tag     string
	content string
}

// fencedBlocks scans ``` fences line by line. An unterminated last fence runs
// to the end of the text, which is what a response cut at max tokens looks
// like.
func fencedBlocks(text string) []fence {
	var (
		blocks  []fence
		current *fence
		body    strings.Builder
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if current != nil {
				current.content = body.String()
				blocks = append(blocks, *current)
				current = nil
				body.Reset()
				continue
			}
			tag := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			if fields := strings.Fields(tag); len(fields) > 0 {
				tag = strings.ToLower(fields[0])
			}
			current = &fence{tag: tag}
			continue
		}
		if current != nil {
			if body.Len() > 0 {
				body.WriteByte('\n')
			}
			body.WriteString(strings.TrimRight(line, "\r"))
		}
	}
	if current != nil {
		current.content = body.String()
		blocks = append(blocks, *current)
	}
	return blocks
}

var extensionLanguages = map[string]string{
	".py":   "python",
	".go":   "go",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rs":   "rust",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".tf":   "hcl",
	".sh":   "bash",
	".yaml": "yaml",
	".yml":  "yaml",
}

var languageAliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"golang":  "go",
	"js":      "javascript",
	"ts":      "typescript",
	"sh":      "bash",
	"shell":   "bash",
	"c++":     "cpp",
	"c#":      "csharp",
}

// fenceLanguage maps a fence tag, which may be a language or a file name,
// to a language name.
func fenceLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	if ext := filepath.Ext(tag); ext != "" && ext != tag {
		return extensionLanguages[ext]
	}
	if alias, ok := languageAliases[tag]; ok {
		return alias
	}
	return tag
}

var declarationLine = regexp.MustCompile(
	`^(async\s+def|async\s+function|def|class|import|from\s+\S+\s+import|func|function|package|` +
		`public|private|protected|static|const|let|var|fn|export|interface|struct|enum|` +
		`#include|using|namespace|@[A-Za-z_]\w*)\b`)

var declarationLanguages = map[string]string{
	"def":            "python",
	"async def":      "python",
	"from":           "python",
	"func":           "go",
	"package":        "go",
	"function":       "javascript",
	"async function": "javascript",
	"const":          "javascript",
	"let":            "javascript",
	"var":            "javascript",
	"export":         "javascript",
	"fn":             "rust",
	"#include":       "c",
	"public":         "java",
	"private":        "java",
	"protected":      "java",
}

// declarationRegion returns the text from the first declaration-like line to
// the end, together with the comments, decorators and docstring directly
// above it.
func declarationRegion(text string) (string, string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !declarationLine.MatchString(line) {
			continue
		}
		region := strings.TrimSpace(strings.Join(lines[leadingContext(lines, i):], "\n"))
		if region == "" {
			return "", "", false
		}
		return region, declarationLanguage(lines[i:]), true
	}
	return "", "", false
}

// declarationLanguage names the language of the first declaration that
// identifies one. Decorators and keywords shared by many languages do not.
func declarationLanguage(lines []string) string {
	for _, line := range lines {
		key := strings.Join(strings.Fields(declarationLine.FindString(line)), " ")
		if strings.HasPrefix(key, "from ") {
			key = "from"
		}
		if lang, ok := declarationLanguages[key]; ok {
			return lang
		}
	}
	return ""
}

// leadingContext walks up from line i over the contiguous block that belongs
// to the declaration and returns its first line.
func leadingContext(lines []string, i int) int {
	start := i
	for j := i - 1; j >= 0; j-- {
		l := strings.TrimSpace(lines[j])
		switch {
		case l == "":
			return start
		case commentLine(l), strings.HasPrefix(l, "@"):
			start = j
		default:
			open := docstringStart(lines, j)
			if open < 0 {
				return start
			}
			start, j = open, open
		}
	}
	return start
}

var commentPrefixes = []string{"#", "//", "/*", "*", "--", "<!--"}

// commentLine also covers shebangs and block comment bodies.
func commentLine(l string) bool {
	for _, p := range commentPrefixes {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return false
}

var docstringQuotes = []string{`"""`, `'''`}

// docstringStart returns the line that opens the docstring closed on line j,
// or -1 when line j does not close one.
func docstringStart(lines []string, j int) int {
	l := strings.TrimSpace(lines[j])
	for _, q := range docstringQuotes {
		if !strings.HasSuffix(l, q) {
			continue
		}
		if len(l) >= 2*len(q) && strings.HasPrefix(l, q) {
			return j
		}
		for k := j - 1; k >= 0; k-- {
			if strings.HasPrefix(strings.TrimSpace(lines[k]), q) {
				return k
			}
		}
	}
	return -1
}

var statementKeywords = map[string]bool{
	"return": true, "if": true, "else": true, "elif": true, "for": true, "while": true,
	"do": true, "switch": true, "case": true, "match": true, "try": true, "except": true,
	"catch": true, "finally": true, "break": true, "continue": true, "pass": true,
	"raise": true, "throw": true, "yield": true, "await": true, "echo": true,
	"print": true, "end": true, "defer": true, "go": true, "select": true,
}

// looksLikeCode reports whether every line of unfenced text reads as code.
// Text made only of comments does not count, it is usually a markdown
// heading or a bullet list.
func looksLikeCode(text string) bool {
	statements := 0
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		switch {
		case l == "", commentLine(l), docstringLine(l):
		case proseLine(l):
			return false
		case declarationLine.MatchString(l), strings.ContainsAny(l, "=(){}[];"),
			statementKeywords[strings.Fields(l)[0]]:
			statements++
		default:
			return false
		}
	}
	return statements > 0
}

func docstringLine(l string) bool {
	for _, q := range docstringQuotes {
		if strings.HasPrefix(l, q) {
			return true
		}
	}
	return false
}

// proseLine matches a capitalised sentence of four or more words.
func proseLine(l string) bool {
	if strings.ContainsAny(l, "=;{}") || len(strings.Fields(l)) < 4 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(l)
	last, _ := utf8.DecodeLastRuneInString(l)
	return unicode.IsUpper(first) && strings.ContainsRune(".!?:", last)
}

type wireReport struct {
	Status  *string      `json:"status"`
	Summary string       `json:"summary"`
	Issues  *[]wireIssue `json:"issues"`
}

type wireIssue struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Fix         string  `json:"fix"`
	Line        flexInt `json:"line"`
}

// flexInt accepts 12, "12" and null.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("line %q: %w", s, err)
	}
	*n = flexInt(v)
	return nil
}

// parseReport is a strict parse against the report schema. Leading and
// trailing prose around the outermost object is ignored.
func parseReport(text string) (entity.Report, error) {
	text = strings.TrimSpace(text)
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return entity.Report{}, fmt.Errorf("no json object")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	dec.DisallowUnknownFields()
	var w wireReport
	if err := dec.Decode(&w); err != nil {
		return entity.Report{}, fmt.Errorf("decode report: %w", err)
	}
	if dec.More() {
		return entity.Report{}, fmt.Errorf("trailing data after report")
	}
	if w.Status == nil || w.Issues == nil {
		return entity.Report{}, fmt.Errorf("report needs status and issues")
	}

	report := entity.Report{
		Summary: strings.TrimSpace(w.Summary),
		Issues:  make([]entity.Issue, 0, len(*w.Issues)),
	}
	for i, wi := range *w.Issues {
		if strings.TrimSpace(wi.Description) == "" {
			return entity.Report{}, fmt.Errorf("issue %d has no description", i)
		}
		report.Issues = append(report.Issues, entity.Issue{
			Type:        strings.TrimSpace(wi.Type),
			Severity:    normalizeSeverity(wi.Severity),
			Description: strings.TrimSpace(wi.Description),
			Fix:         strings.TrimSpace(wi.Fix),
			Line:        int(wi.Line),
		})
	}
	if len(report.Issues) == 0 {
		report.Status = entity.ReportStatusClean
	} else {
		report.Status = entity.ReportStatusIssues
	}
	return report, nil
}

func normalizeSeverity(s string) entity.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return entity.SeverityCritical
	case "high":
		return entity.SeverityHigh
	case "medium", "moderate":
		return entity.SeverityMedium
	case "low":
		return entity.SeverityLow
	case "info", "informational", "none":
		return entity.SeverityInfo
	default:
		return entity.SeverityUnknown
	}
}
