package extractor

import (
	"math"
	"strconv"
	"strings"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// LineResult is the outcome of parsing one response line.
// Exactly one of Draft and Err is meaningful.
type LineResult struct {
	// Line is the 1-based line number in the LLM response.
	Line int

	// Text is the raw line.
	Text string

	Draft model.Draft
	Err   error
}

// OK reports whether the line parsed.
func (r LineResult) OK() bool {
	return r.Err == nil
}

// ParseResponse parses every memory line of an LLM response.
//
// Blank lines, NONE, code fences and echoed format headers are skipped and
// produce no result.
func ParseResponse(response string) []LineResult {
	var results []LineResult
	for i, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if skipLine(line) {
			continue
		}
		draft, err := ParseLine(line)
		results = append(results, LineResult{
			Line:  i + 1,
			Text:  line,
			Draft: draft,
			Err:   err,
		})
	}
	return results
}

// ParseLine parses a single TYPE|SCORE|TAGS|CONTENT line.
//
// The type is case-insensitive, the score is clamped to [0,1] and tags are
// comma separated. Every failure wraps ErrValidation.
func ParseLine(line string) (model.Draft, error) {
	parts := strings.SplitN(strings.TrimSpace(line), "|", 4)
	if len(parts) != 4 {
		return model.Draft{}, model.Validationf("expected 4 '|' separated fields, got %d", len(parts))
	}

	memoryType, err := model.ParseMemoryType(parts[0])
	if err != nil {
		return model.Draft{}, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || math.IsNaN(score) {
		return model.Draft{}, model.Validationf("invalid importance %q", strings.TrimSpace(parts[1]))
	}
	score = math.Max(0, math.Min(1, score))

	var tags []string
	for _, tag := range strings.Split(parts[2], ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	content := strings.TrimSpace(parts[3])
	if content == "" {
		return model.Draft{}, model.Validationf("empty content")
	}

	return model.Draft{
		Content:         content,
		MemoryType:      memoryType,
		ImportanceScore: score,
		Tags:            model.MergeTags(tags),
	}, nil
}

// Drafts returns the drafts of the lines that parsed, in order.
func Drafts(results []LineResult) []model.Draft {
	drafts := make([]model.Draft, 0, len(results))
	for _, r := range results {
		if r.OK() {
			drafts = append(drafts, r.Draft)
		}
	}
	return drafts
}

// Failures returns the lines that did not parse.
func Failures(results []LineResult) []LineResult {
	var failed []LineResult
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

func skipLine(line string) bool {
	if line == "" || strings.EqualFold(line, "NONE") || strings.HasPrefix(line, "```") {
		return true
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, "importance_score") || strings.Contains(line, "TYPE|SCORE|TAGS|CONTENT")
}
