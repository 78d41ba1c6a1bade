package orchestration

import (
	"errors"
	"strings"
	"unicode"

	"fixifox/internal/domain/entity"
)

type classifierRule struct {
	kind    entity.FailureKind
	phrases []string
}

// Phrases are written in normalised form: lower case, words separated by a
// single space. First matching rule wins.
var classifierRules = []classifierRule{
	{entity.FailureRateLimited, []string{
		"rate limit", "ratelimit", "rate limited", "too many requests", "429",
		"quota", "resource exhausted", "requests per minute", "tokens per minute",
	}},
	{entity.FailureTimeout, []string{
		"timeout", "timed out", "time out", "deadline exceeded", "deadline",
		"504", "gateway time",
	}},
	{entity.FailurePayloadTooLarge, []string{
		"token", "too large", "too long", "413", "context length", "context window",
		"maximum length", "max length", "input length",
	}},
	{entity.FailureBackendUnavailable, []string{
		"model", "unavailable", "503", "502", "not found", "404", "no such host",
		"connection refused", "unknown backend", "unsupported backend",
		"unauthorized", "401", "forbidden", "403", "invalid api key", "overloaded",
	}},
}

// Classify maps raw failure text to a FailureKind.
func Classify(raw string) entity.FailureKind {
	text := normalize(raw)
	if text == "" {
		return entity.FailureUnrecognized
	}
	compact := strings.ReplaceAll(text, " ", "")
	for _, rule := range classifierRules {
		for _, phrase := range rule.phrases {
			if containsPhrase(text, compact, phrase) {
				return rule.kind
			}
		}
	}
	return entity.FailureUnrecognized
}

// containsPhrase matches status codes only when no other digit touches them
// ("HTTP429" yes, "4290" no). Word phrases match anywhere once spaces are
// dropped, so "TooManyRequests" and "ReadTimeout" count.
func containsPhrase(text, compact, phrase string) bool {
	if isDigits(phrase) {
		return containsCode(text, phrase)
	}
	return strings.Contains(compact, strings.ReplaceAll(phrase, " ", ""))
}

func containsCode(text, code string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], code)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(code)
		if (start == 0 || !isDigit(text[start-1])) && (end == len(text) || !isDigit(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// KindError carries a failure kind decided by the backend itself, e.g. from
// an HTTP status code.
type KindError struct {
	Kind entity.FailureKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// WithKind wraps err so that ClassifyError reports kind.
func WithKind(kind entity.FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// ClassifyError prefers a structured kind on the error chain and falls back
// to text matching.
func ClassifyError(err error) entity.FailureKind {
	if err == nil {
		return entity.FailureUnrecognized
	}
	var ke *KindError
	if errors.As(err, &ke) && ke.Kind != "" {
		return ke.Kind
	}
	return Classify(err.Error())
}
