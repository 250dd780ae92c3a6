package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"quiz-arena-service/internal/domain"
)

// QuestionSource supplies authoritative question content for a room.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error)
}

// Sequence is the ordered question list of a started room. The answer keys live only
// here; the type exposes client-safe views and a grading predicate, never the key itself.
type Sequence struct {
	entries []sequenceEntry
	index   int
}

type sequenceEntry struct {
	view domain.QuestionView
	key  string
}

// Len returns the number of questions.
func (s *Sequence) Len() int {
	return len(s.entries)
}

// Current returns the view of the current question; false once the sequence is exhausted.
func (s *Sequence) Current() (domain.QuestionView, bool) {
	if s.index < 0 || s.index >= len(s.entries) {
		return domain.QuestionView{}, false
	}
	return s.entries[s.index].view, true
}

// Advance moves to the next question. It returns false when there is none.
func (s *Sequence) Advance() (domain.QuestionView, bool) {
	if s.index < len(s.entries) {
		s.index++
	}
	return s.Current()
}

// IsLast reports whether questionID is the final question.
func (s *Sequence) IsLast(questionID string) bool {
	n := len(s.entries)
	return n > 0 && s.entries[n-1].view.ID == questionID
}

// Grade compares answer against the hidden key of questionID.
func (s *Sequence) Grade(questionID, answer string) bool {
	for _, e := range s.entries {
		if e.view.ID != questionID {
			continue
		}
		return answersMatch(e.view.Type, answer, e.key)
	}
	return false
}

// Sequencer materializes question sequences from a QuestionSource.
type Sequencer struct {
	source   QuestionSource
	newID    func() string
	defCount int
}

func NewSequencer(source QuestionSource, newID func() string, defaultCount int) *Sequencer {
	if defaultCount <= 0 {
		defaultCount = 10
	}
	return &Sequencer{source: source, newID: newID, defCount: defaultCount}
}

// Materialize fetches a fixed-length question set for room and numbers it from 1.
func (q *Sequencer) Materialize(ctx context.Context, room domain.Room) (*Sequence, error) {
	count := questionCount(room.Settings, q.defCount)
	specs, err := q.source.FetchQuestions(ctx, domain.QuestionQuery{
		GameType:   room.GameType,
		GradeLevel: room.GradeLevel,
		Difficulty: room.Difficulty,
		Count:      count,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if len(specs) > count {
		specs = specs[:count]
	}
	if len(specs) == 0 {
		return nil, domain.ErrNoQuestions
	}

	seq := &Sequence{entries: make([]sequenceEntry, 0, len(specs))}
	for i, spec := range specs {
		points := spec.Points
		if points <= 0 {
			points = 1
		}
		limit := spec.TimeLimitSeconds
		if limit <= 0 {
			limit = 20
		}
		subject := spec.Subject
		if subject == "" {
			subject = room.GameType
		}
		qtype := spec.Type
		if qtype == "" {
			qtype = domain.MultipleChoice
		}
		var options []string
		if qtype == domain.MultipleChoice || qtype == domain.TrueFalse {
			options = append(options, spec.Options...)
		}
		seq.entries = append(seq.entries, sequenceEntry{
			view: domain.QuestionView{
				ID:               q.newID(),
				SequenceNumber:   i + 1,
				Prompt:           spec.Prompt,
				Type:             qtype,
				Options:          options,
				Points:           points,
				TimeLimitSeconds: limit,
				Subject:          subject,
			},
			key: spec.CorrectAnswer,
		})
	}
	return seq, nil
}

func questionCount(settings map[string]any, fallback int) int {
	raw, ok := settings["questionCount"]
	if !ok {
		return fallback
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	}
	if n <= 0 {
		return fallback
	}
	return n
}

var spaces = regexp.MustCompile(`\s+`)

func normalizeAnswer(s string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func answersMatch(qtype domain.QuestionType, answer, key string) bool {
	a, k := normalizeAnswer(answer), normalizeAnswer(key)
	if a == "" {
		return false
	}
	if qtype == domain.TrueFalse {
		return truthValue(a) != "" && truthValue(a) == truthValue(k)
	}
	return a == k
}

func truthValue(s string) string {
	switch s {
	case "true", "t", "yes", "y":
		return "true"
	case "false", "f", "no", "n":
		return "false"
	}
	return ""
}
