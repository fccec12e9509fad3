package errors

import "errors"

// Engine
var (
	ErrInvalidRules       = errors.New("invalid rules")
	ErrInvalidScoreInput  = errors.New("invalid score input")
	ErrInconsistentScores = errors.New("inconsistent scores")
	ErrInvalidExpense     = errors.New("invalid expense")
	ErrInvalidSettlement  = errors.New("invalid settlement input")
	ErrTieBreakState      = errors.New("invalid tie-break state")
	ErrInvalidSelection   = errors.New("invalid tie-break selection")
)

// Persistence boundary
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionLocked     = errors.New("session is locked")
	ErrInvalidSession    = errors.New("invalid session")
	ErrRulesInUse        = errors.New("rules cannot change once matches exist")
	ErrMatchNotFound     = errors.New("match not found")
	ErrExpenseNotFound   = errors.New("expense not found")
	ErrTieBreakNotFound  = errors.New("tie-break not found or expired")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrPlayerExists      = errors.New("player already exists")
	ErrInvalidPlayerName = errors.New("invalid player name")
	ErrLeagueNotFound    = errors.New("league not found")
	ErrInvalidLeague     = errors.New("invalid league")
	ErrUnauthorized      = errors.New("unauthorized")
)
