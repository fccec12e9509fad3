package session

import (
	"errors"
	"fmt"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	appErr "jonglog-service/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Load fetches a session or returns ErrSessionNotFound.
func Load(db *gorm.DB, id int64) (*model.MatchSet, error) {
	var ms model.MatchSet
	if err := db.First(&ms, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.ErrSessionNotFound
		}
		return nil, err
	}
	return &ms, nil
}

// LoadForWrite locks the session row inside tx and refuses locked sessions.
func LoadForWrite(tx *gorm.DB, id int64) (*model.MatchSet, error) {
	ms, err := Load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
	if err != nil {
		return nil, err
	}
	if ms.Locked {
		return nil, fmt.Errorf("%w: session %d", appErr.ErrSessionLocked, id)
	}
	return ms, nil
}

func LoadMatches(db *gorm.DB, sessionID int64) ([]model.Match, error) {
	var matches []model.Match
	if err := db.Where("match_set_id = ?", sessionID).Order("id ASC").Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

func LoadExpenses(db *gorm.DB, sessionID int64) ([]model.Expense, error) {
	var expenses []model.Expense
	if err := db.Where("match_set_id = ?", sessionID).Order("id ASC").Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

// Outcomes decodes the outcomes of every match in order.
func Outcomes(matches []model.Match) ([][]engine.Outcome, error) {
	out := make([][]engine.Outcome, 0, len(matches))
	for i := range matches {
		o, err := matches[i].Outcomes()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func ToMatchView(m *model.Match) (*MatchView, error) {
	outcomes, err := m.Outcomes()
	if err != nil {
		return nil, err
	}
	return &MatchView{ID: m.ID, Mode: engine.Mode(m.Mode), Outcomes: outcomes, CreatedAt: m.CreatedAt}, nil
}

func ToExpenseView(e *model.Expense) (*ExpenseView, error) {
	targets, err := e.Targets()
	if err != nil {
		return nil, err
	}
	return &ExpenseView{
		ID:        e.ID,
		Note:      e.Note,
		Payer:     e.Payer,
		Amount:    e.Amount,
		Targets:   targets,
		CreatedAt: e.CreatedAt,
	}, nil
}
