package expense

import (
	"context"
	"strings"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/player"
	"jonglog-service/internal/service/session"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultNote = "その他"

type Service struct {
	db       *gorm.DB
	observer feed.Observer
}

func NewService(db *gorm.DB, observer feed.Observer) *Service {
	if observer == nil {
		observer = feed.Nop{}
	}
	return &Service{db: db, observer: observer}
}

type AddParams struct {
	Note    string
	Payer   string
	Amount  int64
	Targets []string
}

func (s *Service) List(ctx context.Context, sessionID int64) ([]session.ExpenseView, error) {
	db := s.db.WithContext(ctx)
	if _, err := session.Load(db, sessionID); err != nil {
		return nil, err
	}
	expenses, err := session.LoadExpenses(db, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]session.ExpenseView, 0, len(expenses))
	for i := range expenses {
		view, err := session.ToExpenseView(&expenses[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// Add records a shared cost. Expenses stay editable on locked sessions;
// the lock only freezes scores and the rate.
func (s *Service) Add(ctx context.Context, sessionID int64, params AddParams) (*session.ExpenseView, error) {
	e := engine.Expense{
		Note:    strings.TrimSpace(params.Note),
		Amount:  params.Amount,
		Targets: make([]string, 0, len(params.Targets)),
	}
	if e.Note == "" {
		e.Note = defaultNote
	}
	if payer, err := player.NormalizeName(params.Payer); err == nil {
		e.Payer = payer
	}
	for _, t := range params.Targets {
		if name, err := player.NormalizeName(t); err == nil {
			e.Targets = append(e.Targets, name)
		}
	}

	var record model.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ms, err := session.Load(tx, sessionID)
		if err != nil {
			return err
		}
		players, err := ms.Players()
		if err != nil {
			return err
		}
		if err := engine.ValidateExpense(players, e); err != nil {
			return err
		}
		record = model.Expense{
			MatchSetID:  sessionID,
			Note:        e.Note,
			Payer:       e.Payer,
			Amount:      e.Amount,
			TargetsJSON: model.MustJSON(e.Targets),
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("expense added",
		zap.Int64("sessionID", sessionID),
		zap.Int64("expenseID", record.ID),
		zap.Int64("amount", record.Amount),
	)
	s.observer.SessionChanged(ctx, sessionID, "expense_added")
	return session.ToExpenseView(&record)
}

func (s *Service) Remove(ctx context.Context, sessionID, expenseID int64) error {
	if _, err := session.Load(s.db.WithContext(ctx), sessionID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("id = ? AND match_set_id = ?", expenseID, sessionID).
		Delete(&model.Expense{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErr.ErrExpenseNotFound
	}
	s.observer.SessionChanged(ctx, sessionID, "expense_removed")
	return nil
}
