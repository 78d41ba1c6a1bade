package entity

// GenerationOutcome is either Ok(Result, Trace) or Failed(Trace, UserMessage).
// The trace is kept in both cases.
type GenerationOutcome struct {
	OK          bool              `json:"ok" bson:"ok"`
	Result      *ExtractionResult `json:"result,omitempty" bson:"result,omitempty"`
	Backend     string            `json:"backend,omitempty" bson:"backend,omitempty"`
	Trace       AttemptTrace      `json:"trace" bson:"trace"`
	UserMessage string            `json:"user_message,omitempty" bson:"user_message,omitempty"`
	Failure     FailureKind       `json:"failure,omitempty" bson:"failure,omitempty"`
}

func Ok(result ExtractionResult, backend string, trace AttemptTrace) GenerationOutcome {
	return GenerationOutcome{OK: true, Result: &result, Backend: backend, Trace: trace}
}

func Failed(trace AttemptTrace, kind FailureKind, message string) GenerationOutcome {
	return GenerationOutcome{Trace: trace, Failure: kind, UserMessage: message}
}
