package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/metrics"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/player"
	"jonglog-service/internal/service/session"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service records match results and drives the tie-break protocol for
// submissions that need one.
type Service struct {
	db       *gorm.DB
	pending  PendingStore
	ttl      time.Duration
	observer feed.Observer
	metrics  *metrics.Metrics
}

type Options struct {
	Pending  PendingStore
	TTL      time.Duration
	Observer feed.Observer
	Metrics  *metrics.Metrics
}

func NewService(db *gorm.DB, opts Options) *Service {
	if opts.Pending == nil {
		opts.Pending = NewMemoryPendingStore()
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Observer == nil {
		opts.Observer = feed.Nop{}
	}
	return &Service{
		db:       db,
		pending:  opts.Pending,
		ttl:      opts.TTL,
		observer: opts.Observer,
		metrics:  opts.Metrics,
	}
}

type SubmitParams struct {
	// MatchID replaces an existing match when non-zero.
	MatchID int64
	Mode    engine.Mode
	Scores  []engine.Input
}

// TieBreakView describes a pending submission to the client. Indices refer
// to Players.
type TieBreakView struct {
	Token     string    `json:"token"`
	SessionID int64     `json:"sessionId"`
	MatchID   int64     `json:"matchId,omitempty"`
	Players   []string  `json:"players"`
	Group     []int     `json:"group"`
	Selected  []int     `json:"selected"`
	Remaining []int     `json:"remaining"`
	Pending   [][]int   `json:"pending"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SubmitResult carries either the saved match or the tie-break to resolve.
type SubmitResult struct {
	Match    *session.MatchView `json:"match,omitempty"`
	TieBreak *TieBreakView      `json:"tieBreak,omitempty"`
}

func (r *SubmitResult) NeedsTieBreak() bool {
	return r.TieBreak != nil
}

func (s *Service) Submit(ctx context.Context, sessionID int64, params SubmitParams) (*SubmitResult, error) {
	ms, err := session.Load(s.db.WithContext(ctx), sessionID)
	if err != nil {
		return nil, err
	}
	if ms.Locked {
		return nil, fmt.Errorf("%w: session %d", appErr.ErrSessionLocked, sessionID)
	}
	if params.MatchID != 0 {
		if err := s.ensureMatch(ctx, sessionID, params.MatchID); err != nil {
			return nil, err
		}
	}
	players, err := ms.Players()
	if err != nil {
		return nil, err
	}
	rules, err := ms.Rules()
	if err != nil {
		return nil, err
	}
	inputs, err := seatOrder(players, params.Scores)
	if err != nil {
		return nil, err
	}
	mode := params.Mode
	if mode == "" {
		mode = engine.ModeRaw
	}

	res, sub, err := engine.Begin(inputs, rules, mode)
	if err != nil {
		s.metrics.Resolution(string(mode), "rejected")
		return nil, err
	}
	if sub == nil {
		s.metrics.Resolution(string(mode), "resolved")
		view, err := s.saveMatch(ctx, sessionID, params.MatchID, mode, rules, res.Outcomes)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Match: view}, nil
	}

	s.metrics.Resolution(string(mode), "tie")
	token := uuid.NewString()
	p := Pending{
		SessionID:  sessionID,
		MatchID:    params.MatchID,
		Submission: *sub,
		ExpiresAt:  time.Now().Add(s.ttl),
	}
	if err := s.pending.Save(ctx, token, p, s.ttl); err != nil {
		return nil, err
	}
	logger.Log.Info("tie-break started",
		zap.Int64("sessionID", sessionID),
		zap.String("token", token),
		zap.Int("groups", len(res.TieGroups)),
	)
	return &SubmitResult{TieBreak: toTieBreakView(token, &p)}, nil
}

// GetTie returns the current state of a pending submission.
func (s *Service) GetTie(ctx context.Context, token string) (*TieBreakView, error) {
	p, err := s.pending.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	return toTieBreakView(token, p), nil
}

// SelectTie picks the next-higher-ranked player of the current tie group.
// A rejected selection leaves the pending state unchanged. The final
// selection claims the token, so concurrent selects cannot save the match
// twice.
func (s *Service) SelectTie(ctx context.Context, token string, index int) (*SubmitResult, error) {
	var (
		prev Pending
		res  *engine.Resolution
	)
	p, err := s.pending.Update(ctx, token, func(p *Pending) (bool, error) {
		if err := s.ensureWritable(ctx, p.SessionID); err != nil {
			return false, err
		}
		next, r, err := p.Submission.Select(index)
		if err != nil {
			return false, err
		}
		prev = *p
		p.Submission = next
		res = r
		return r == nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.TieBreakStep("select")

	if res == nil {
		return &SubmitResult{TieBreak: toTieBreakView(token, p)}, nil
	}

	view, err := s.saveMatch(ctx, p.SessionID, p.MatchID, p.Submission.Mode, p.Submission.Rules, res.Outcomes)
	if err != nil {
		// Put the last step back so the caller can retry it.
		if rerr := s.resave(ctx, token, &prev); rerr != nil && !errors.Is(rerr, appErr.ErrTieBreakNotFound) {
			logger.Log.Warn("failed to restore tie-break", zap.String("token", token), zap.Error(rerr))
		}
		return nil, err
	}
	logger.Log.Info("tie-break resolved", zap.Int64("sessionID", p.SessionID), zap.String("token", token))
	return &SubmitResult{Match: view}, nil
}

func (s *Service) ResetTie(ctx context.Context, token string) (*TieBreakView, error) {
	p, err := s.pending.Update(ctx, token, func(p *Pending) (bool, error) {
		p.Submission = p.Submission.Reset()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.TieBreakStep("reset")
	return toTieBreakView(token, p), nil
}

// CancelTie discards a pending submission without recording anything.
func (s *Service) CancelTie(ctx context.Context, token string) error {
	if err := s.pending.Delete(ctx, token); err != nil {
		return err
	}
	s.metrics.TieBreakStep("cancel")
	return nil
}

func (s *Service) RemoveMatch(ctx context.Context, sessionID, matchID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := session.LoadForWrite(tx, sessionID); err != nil {
			return err
		}
		result := tx.Where("id = ? AND match_set_id = ?", matchID, sessionID).Delete(&model.Match{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return appErr.ErrMatchNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Log.Info("match removed", zap.Int64("sessionID", sessionID), zap.Int64("matchID", matchID))
	s.observer.SessionChanged(ctx, sessionID, "match_removed")
	return nil
}

func (s *Service) saveMatch(ctx context.Context, sessionID, matchID int64, mode engine.Mode, rules engine.Rules, outcomes []engine.Outcome) (*session.MatchView, error) {
	var match model.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ms, err := session.LoadForWrite(tx, sessionID)
		if err != nil {
			return err
		}
		current, err := ms.Rules()
		if err != nil {
			return err
		}
		if !current.Equal(rules) {
			return fmt.Errorf("%w: session rules changed during the tie-break", appErr.ErrTieBreakState)
		}

		if matchID == 0 {
			match = model.Match{MatchSetID: sessionID, Mode: string(mode), OutcomesJSON: model.MustJSON(outcomes)}
			return tx.Create(&match).Error
		}

		result := tx.Model(&model.Match{}).
			Where("id = ? AND match_set_id = ?", matchID, sessionID).
			Updates(map[string]interface{}{
				"mode":          string(mode),
				"outcomes_json": model.MustJSON(outcomes),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return appErr.ErrMatchNotFound
		}
		return tx.First(&match, matchID).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("match saved",
		zap.Int64("sessionID", sessionID),
		zap.Int64("matchID", match.ID),
		zap.Bool("updated", matchID != 0),
		zap.String("mode", string(mode)),
	)
	s.observer.SessionChanged(ctx, sessionID, "match_saved")
	return session.ToMatchView(&match)
}

// resave stores p under its original deadline.
func (s *Service) resave(ctx context.Context, token string, p *Pending) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return appErr.ErrTieBreakNotFound
	}
	return s.pending.Save(ctx, token, *p, ttl)
}

func (s *Service) ensureWritable(ctx context.Context, sessionID int64) error {
	ms, err := session.Load(s.db.WithContext(ctx), sessionID)
	if err != nil {
		return err
	}
	if ms.Locked {
		return fmt.Errorf("%w: session %d", appErr.ErrSessionLocked, sessionID)
	}
	return nil
}

func (s *Service) ensureMatch(ctx context.Context, sessionID, matchID int64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Match{}).
		Where("id = ? AND match_set_id = ?", matchID, sessionID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return appErr.ErrMatchNotFound
	}
	return nil
}

// seatOrder matches scores to the session players by name and returns them
// in seat order.
func seatOrder(players []string, scores []engine.Input) ([]engine.Input, error) {
	if len(scores) != len(players) {
		return nil, fmt.Errorf("%w: expected %d scores, got %d", appErr.ErrInvalidScoreInput, len(players), len(scores))
	}
	byName := make(map[string]engine.Input, len(scores))
	for _, in := range scores {
		name, err := player.NormalizeName(in.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrInvalidScoreInput, err)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate player %q", appErr.ErrInvalidScoreInput, name)
		}
		in.Name = name
		byName[name] = in
	}

	out := make([]engine.Input, len(players))
	for i, p := range players {
		in, ok := byName[p]
		if !ok {
			return nil, fmt.Errorf("%w: missing score for %s", appErr.ErrInvalidScoreInput, p)
		}
		out[i] = in
	}
	return out, nil
}

func toTieBreakView(token string, p *Pending) *TieBreakView {
	tie := p.Submission.Tie
	players := make([]string, len(p.Submission.Inputs))
	for i, in := range p.Submission.Inputs {
		players[i] = in.Name
	}
	pending := tie.Pending
	if len(pending) > 0 {
		pending = pending[1:]
	}
	return &TieBreakView{
		Token:     token,
		SessionID: p.SessionID,
		MatchID:   p.MatchID,
		Players:   players,
		Group:     tie.Current,
		Selected:  tie.Selected,
		Remaining: tie.Remaining(),
		Pending:   pending,
		ExpiresAt: p.ExpiresAt,
	}
}

// ParseMode maps the request mode, accepting "final" as an alias of direct.
func ParseMode(s string) (engine.Mode, error) {
	if strings.EqualFold(strings.TrimSpace(s), "final") {
		return engine.ModeDirect, nil
	}
	return engine.ParseMode(s)
}
