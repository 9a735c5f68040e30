// Package procedure mines reusable procedures from successful patterns
// and explicit lessons, and tracks their real-world success rates.
package procedure

import (
	"fmt"
	"strings"
	"time"

	"github.com/calyptra/mnemo/internal/logging"
	"github.com/calyptra/mnemo/internal/store"
	"github.com/calyptra/mnemo/internal/types"
	"github.com/google/uuid"
)

// MinPatternSuccessRate gates pattern-derived procedures: a pattern whose
// source events succeeded less often than this does not become a
// procedure.
const MinPatternSuccessRate = 0.6

// Creator mines and maintains procedures.
type Creator struct {
	db *store.DB
}

// New creates a procedure creator backed by the given store.
func New(db *store.DB) *Creator {
	return &Creator{db: db}
}

// categoryRule maps content keywords to a procedure category. Rules are
// checked in order; the first match wins.
type categoryRule struct {
	keywords []string
	category types.ProcedureCategory
}

var categoryRules = []categoryRule{
	{[]string{"git", "commit", "push", "branch"}, types.CategoryGit},
	{[]string{"debug", "error", "fix", "troubleshoot"}, types.CategoryDebugging},
	{[]string{"test", "check", "verify", "assert"}, types.CategoryTesting},
	{[]string{"refactor", "clean", "reorganize"}, types.CategoryRefactoring},
	{[]string{"deploy", "release", "build"}, types.CategoryDeployment},
}

// CreateFromPattern mines a procedure from a pattern whose source events
// succeeded often enough. Returns (nil, nil) when the success rate is
// below the gate.
func (c *Creator) CreateFromPattern(pattern *types.PatternCandidate, successRate float64) (*types.Procedure, error) {
	if successRate < MinPatternSuccessRate {
		logging.Debug("procedure", "pattern %s below success gate at %.2f", pattern.ID, successRate)
		return nil, nil
	}

	p := &types.Procedure{
		ID:              "proc-" + uuid.NewString(),
		Name:            deriveName(pattern.Content),
		Category:        categorize(pattern.Content),
		Template:        pattern.Content,
		SourcePatternID: pattern.ID,
		Confidence:      pattern.Confidence,
		SuccessRate:     successRate,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.db.InsertProcedure(p); err != nil {
		return nil, fmt.Errorf("failed to create procedure from pattern %s: %w", pattern.ID, err)
	}

	logging.Info("procedure", "created %s procedure %q from pattern %s", p.Category, p.Name, pattern.ID)
	return p, nil
}

// CreateFromLesson turns an explicit lesson into a procedure. Lessons
// start with neutral priors: moderate confidence and an even success
// rate, refined as usage accumulates.
func (c *Creator) CreateFromLesson(lessonID, content string) (*types.Procedure, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("lesson %s has no content", lessonID)
	}

	p := &types.Procedure{
		ID:             "proc-" + uuid.NewString(),
		Name:           deriveName(content),
		Category:       categorize(content),
		Template:       lessonTemplate(content),
		SourceLessonID: lessonID,
		Confidence:     0.7,
		SuccessRate:    0.5,
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.db.InsertProcedure(p); err != nil {
		return nil, fmt.Errorf("failed to create procedure from lesson %s: %w", lessonID, err)
	}

	logging.Info("procedure", "created %s procedure %q from lesson %s", p.Category, p.Name, lessonID)
	return p, nil
}

// RecordUsage appends a usage record and recomputes the procedure's
// cumulative success rate as successes over total uses. Returns the
// refreshed procedure.
func (c *Creator) RecordUsage(usage *types.ProcedureUsage) (*types.Procedure, error) {
	if usage.ID == "" {
		usage.ID = "use-" + uuid.NewString()
	}

	total, successes, err := c.db.AppendProcedureUsage(usage)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage for %s: %w", usage.ProcedureID, err)
	}

	rate := 0.5 // neutral prior with no recorded uses
	if total > 0 {
		rate = float64(successes) / float64(total)
	}
	if err := c.db.SetProcedureStats(usage.ProcedureID, rate, total); err != nil {
		return nil, err
	}

	return c.db.GetProcedure(usage.ProcedureID)
}

// categorize picks a category from content keywords, first rule wins.
func categorize(content string) types.ProcedureCategory {
	lower := strings.ToLower(content)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return types.CategoryCodeTemplate
}

// deriveName builds a short human-readable name: the title-cased text
// after the first colon when present, otherwise the first three words.
func deriveName(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	if idx := strings.IndexByte(line, ':'); idx >= 0 && idx+1 < len(line) {
		line = strings.TrimSpace(line[idx+1:])
	} else {
		words := strings.Fields(line)
		if len(words) > 3 {
			words = words[:3]
		}
		line = strings.Join(words, " ")
	}
	return titleCase(line)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		if len(runes) > 0 {
			words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
		}
	}
	return strings.Join(words, " ")
}

// lessonTemplate renders lesson content as a bulleted checklist, one
// bullet per non-empty line.
func lessonTemplate(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-* \t"))
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
