// Package classify turns model output into a Verdict.
package classify

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/mail-triage/internal/completion"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/prompt"
)

// Status says how much of a response could be understood.
type Status int

const (
	// StatusOK means a rating was extracted.
	StatusOK Status = iota
	// StatusNoRating means the response was a JSON object without a
	// usable Rating field.
	StatusNoRating
	// StatusMalformed means the response was not a JSON object.
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoRating:
		return "no_rating"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is a parsed response.
type Result struct {
	Verdict model.Verdict
	Status  Status

	// Raw is the unmodified response text.
	Raw string
}

// Parse extracts a Verdict from free-form model output. It never fails:
// anything it cannot understand yields an absent rating.
func Parse(text string, categoriesEnabled bool) Result {
	res := Result{Raw: text, Status: StatusMalformed}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFence(text)), &fields); err != nil || fields == nil {
		return res
	}

	res.Status = StatusNoRating
	if raw, ok := fields["Rating"]; ok {
		if rating, ok := coerceRating(raw); ok {
			res.Verdict.Rating = &rating
			res.Status = StatusOK
		}
	}

	if categoriesEnabled {
		if raw, ok := fields["Category"]; ok {
			res.Verdict.Category = coerceCategory(raw)
		}
	}

	return res
}

// stripFence removes surrounding whitespace and a Markdown code fence.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop an info string such as "json".
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// coerceRating accepts an integral number, such as 8, 8.0 or 1e1, or a
// string holding one.
func coerceRating(raw json.RawMessage) (int, bool) {
	lit := strings.TrimSpace(string(raw))
	if strings.HasPrefix(lit, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		lit = strings.TrimSpace(s)
	}
	if n, err := strconv.Atoi(lit); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func coerceCategory(raw json.RawMessage) string {
	lit := strings.TrimSpace(string(raw))
	if lit == "" || lit == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Not a string; keep the literal text.
		s = lit
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// Classifier renders a prompt, calls the provider and parses the reply.
type Classifier struct {
	provider          completion.Provider
	prompts           *prompt.Builder
	categoriesEnabled bool
	timeout           time.Duration
}

// New creates a Classifier. timeout bounds each provider call; zero
// means no bound beyond the caller's context.
func New(p completion.Provider, prompts *prompt.Builder, categoriesEnabled bool, timeout time.Duration) *Classifier {
	return &Classifier{
		provider:          p,
		prompts:           prompts,
		categoriesEnabled: categoriesEnabled,
		timeout:           timeout,
	}
}

// Classify returns the parsed verdict for view. The error is non-nil only
// when the prompt could not be rendered or the provider call failed; an
// unparseable reply is reported through Result.Status.
func (c *Classifier) Classify(ctx context.Context, view model.MessageView) (Result, error) {
	text, err := c.prompts.Render(view)
	if err != nil {
		return Result{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply, err := c.provider.Generate(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("%s completion: %w", c.provider.Name(), err)
	}

	return Parse(reply, c.categoriesEnabled), nil
}
