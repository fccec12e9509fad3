package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/metrics"
	"jonglog-service/internal/model"
	"jonglog-service/internal/report"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/session"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service computes settlements on demand from the stored records. Nothing
// is cached; every call reflects the current matches and expenses.
type Service struct {
	db      *gorm.DB
	broker  feed.Broker
	metrics *metrics.Metrics
}

func NewService(db *gorm.DB, broker feed.Broker, m *metrics.Metrics) *Service {
	if broker == nil {
		broker = feed.Nop{}
	}
	return &Service{db: db, broker: broker, metrics: m}
}

type Result struct {
	SessionID    int64             `json:"sessionId"`
	Date         string            `json:"date"`
	Rate         float64           `json:"rate"`
	Locked       bool              `json:"locked"`
	Players      []string          `json:"players"`
	MatchCount   int               `json:"matchCount"`
	ExpenseTotal int64             `json:"expenseTotal"`
	Lines        []engine.Line     `json:"lines"`
	Transfers    []engine.Transfer `json:"transfers"`
}

type records struct {
	session  *model.MatchSet
	players  []string
	matches  [][]engine.Outcome
	expenses []engine.Expense
}

func (s *Service) load(ctx context.Context, sessionID int64) (*records, error) {
	db := s.db.WithContext(ctx)
	ms, err := session.Load(db, sessionID)
	if err != nil {
		return nil, err
	}
	players, err := ms.Players()
	if err != nil {
		return nil, err
	}
	matches, err := session.LoadMatches(db, sessionID)
	if err != nil {
		return nil, err
	}
	outcomes, err := session.Outcomes(matches)
	if err != nil {
		return nil, err
	}
	rows, err := session.LoadExpenses(db, sessionID)
	if err != nil {
		return nil, err
	}
	expenses := make([]engine.Expense, 0, len(rows))
	for i := range rows {
		e, err := rows[i].Engine()
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return &records{session: ms, players: players, matches: outcomes, expenses: expenses}, nil
}

func (s *Service) Compute(ctx context.Context, sessionID int64) (*Result, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, err := engine.Settle(rec.players, rec.matches, rec.expenses, rec.session.Rate)
	if err != nil {
		return nil, err
	}
	s.metrics.Settlement(len(st.Transfers))

	var total int64
	for _, e := range rec.expenses {
		total += e.Amount
	}
	if residual := st.Total(); residual != 0 {
		logger.Log.Warn("settlement does not balance",
			zap.Int64("sessionID", sessionID),
			zap.Int64("residual", residual),
		)
	}
	return &Result{
		SessionID:    sessionID,
		Date:         rec.session.Date.Format("2006-01-02"),
		Rate:         rec.session.Rate,
		Locked:       rec.session.Locked,
		Players:      rec.players,
		MatchCount:   len(rec.matches),
		ExpenseTotal: total,
		Lines:        st.Lines,
		Transfers:    st.Transfers,
	}, nil
}

// Workbook exports the session as an xlsx file.
func (s *Service) Workbook(ctx context.Context, sessionID int64) ([]byte, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st, err := engine.Settle(rec.players, rec.matches, rec.expenses, rec.session.Rate)
	if err != nil {
		return nil, err
	}
	return report.Workbook(report.SessionSheet{
		Title:      fmt.Sprintf("%s (#%d)", rec.session.Date.Format("2006-01-02"), sessionID),
		Players:    rec.players,
		Rate:       rec.session.Rate,
		Matches:    rec.matches,
		Expenses:   rec.expenses,
		Settlement: st,
	})
}

// Chart renders the running score of each player across the session.
func (s *Service) Chart(ctx context.Context, sessionID int64) ([]byte, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return report.CumulativeChart(rec.session.Date.Format("2006-01-02"), rec.players, rec.matches)
}

// SessionChanged pushes a fresh settlement, or a deletion notice, to the
// session's live feed. Failures are logged and never reach the caller.
func (s *Service) SessionChanged(ctx context.Context, sessionID int64, reason string) {
	msg := feed.Message{Type: feed.TypeSettlement, SessionID: sessionID, Reason: reason}

	result, err := s.Compute(ctx, sessionID)
	switch {
	case errors.Is(err, appErr.ErrSessionNotFound):
		msg.Type = feed.TypeDeleted
	case err != nil:
		logger.Log.Warn("failed to compute settlement for feed", zap.Int64("sessionID", sessionID), zap.Error(err))
		return
	default:
		data, err := json.Marshal(result)
		if err != nil {
			logger.Log.Warn("failed to encode settlement for feed", zap.Int64("sessionID", sessionID), zap.Error(err))
			return
		}
		msg.Data = data
	}

	if err := s.broker.Publish(ctx, msg); err != nil {
		logger.Log.Warn("failed to publish session update",
			zap.Int64("sessionID", sessionID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
