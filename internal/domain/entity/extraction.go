package entity

type ResultKind string

const (
	ResultCode      ResultKind = "code"
	ResultDiagram   ResultKind = "diagram"
	ResultReport    ResultKind = "report"
	ResultPlainText ResultKind = "plain_text"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ExtractionResult is a tagged union over Code, Diagram, Report and
// PlainText. Only the fields that belong to Kind are set.
type ExtractionResult struct {
	Kind       ResultKind `json:"kind" bson:"kind"`
	Content    string     `json:"content,omitempty" bson:"content,omitempty"`
	Language   string     `json:"language,omitempty" bson:"language,omitempty"`
	Report     *Report    `json:"report,omitempty" bson:"report,omitempty"`
	Confidence Confidence `json:"confidence" bson:"confidence"`
}

func CodeResult(content, language string, c Confidence) ExtractionResult {
	return ExtractionResult{Kind: ResultCode, Content: content, Language: language, Confidence: c}
}

func DiagramResult(content string, c Confidence) ExtractionResult {
	return ExtractionResult{Kind: ResultDiagram, Content: content, Confidence: c}
}

func ReportResult(r Report, c Confidence) ExtractionResult {
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	return ExtractionResult{Kind: ResultReport, Report: &r, Confidence: c}
}

func PlainTextResult(content string, c Confidence) ExtractionResult {
	return ExtractionResult{Kind: ResultPlainText, Content: content, Confidence: c}
}

// Matches reports whether the result variant is the one the shape asks for.
func (r ExtractionResult) Matches(shape PayloadShape) bool {
	switch shape {
	case ShapeSourceCode:
		return r.Kind == ResultCode
	case ShapeDiagramSource:
		return r.Kind == ResultDiagram
	case ShapeStructuredReport:
		return r.Kind == ResultReport
	default:
		return r.Kind == ResultPlainText
	}
}

const (
	ReportStatusClean  = "clean"
	ReportStatusIssues = "issues_found"
)

type Report struct {
	Status  string  `json:"status" bson:"status"`
	Summary string  `json:"summary,omitempty" bson:"summary,omitempty"`
	Issues  []Issue `json:"issues" bson:"issues"`
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
	SeverityUnknown  Severity = "unknown"
)

type Issue struct {
	Type        string   `json:"type" bson:"type"`
	Severity    Severity `json:"severity" bson:"severity"`
	Description string   `json:"description" bson:"description"`
	Fix         string   `json:"fix" bson:"fix"`
	Line        int      `json:"line,omitempty" bson:"line,omitempty"`
}
