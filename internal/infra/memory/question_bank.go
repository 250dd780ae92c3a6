package memory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quiz-arena-service/internal/domain"
)

// BankQuestion is a question bank entry: the question plus the tags it is selected by.
type BankQuestion struct {
	domain.QuestionSpec `yaml:",inline"`
	GameType            string `yaml:"gameType"`
	GradeLevel          int    `yaml:"gradeLevel"`
	Difficulty          string `yaml:"difficulty"`
}

// QuestionBank is a PoolLoader over a fixed list of questions (useful for tests/demos).
type QuestionBank struct {
	questions []BankQuestion
}

func NewQuestionBank(questions []BankQuestion) *QuestionBank {
	return &QuestionBank{questions: questions}
}

// Questions returns the bank entries.
func (b *QuestionBank) Questions() []BankQuestion {
	return b.questions
}

// LoadQuestionBankFile reads a YAML list of BankQuestion entries.
func LoadQuestionBankFile(path string) (*QuestionBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var doc struct {
		Questions []BankQuestion `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	return NewQuestionBank(doc.Questions), nil
}

// LoadPool returns the questions tagged with the query's game type. Grade level 0 and an
// empty difficulty match everything.
func (b *QuestionBank) LoadPool(_ context.Context, query domain.QuestionQuery) ([]domain.QuestionSpec, error) {
	var out []domain.QuestionSpec
	for _, q := range b.questions {
		if !strings.EqualFold(q.GameType, query.GameType) {
			continue
		}
		if query.GradeLevel != 0 && q.GradeLevel != 0 && q.GradeLevel != query.GradeLevel {
			continue
		}
		if query.Difficulty != "" && q.Difficulty != "" && !strings.EqualFold(q.Difficulty, query.Difficulty) {
			continue
		}
		out = append(out, q.QuestionSpec)
	}
	if len(out) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return out, nil
}
