package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"jonglog-service/internal/middleware"
	"jonglog-service/internal/service"
	"jonglog-service/internal/ws"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"
	"jonglog-service/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Feed, services.Settlements, services.Metrics)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(services.Metrics.Handler()))

	v1 := r.Group("/jonglog/v1")
	{
		v1.GET("/players", handler.ListPlayers)
		v1.GET("/players/:name/stats", handler.PlayerStats)
		v1.GET("/settings/rules", handler.GetRules)

		v1.GET("/sessions", handler.ListSessions)
		v1.GET("/sessions/:id", handler.GetSession)
		v1.GET("/sessions/:id/settlement", handler.GetSettlement)
		v1.GET("/sessions/:id/settlement.xlsx", handler.ExportWorkbook)
		v1.GET("/sessions/:id/chart.png", handler.SessionChart)
		v1.GET("/tiebreaks/:token", handler.GetTieBreak)

		v1.GET("/leagues", handler.ListLeagues)
		v1.GET("/leagues/:id", handler.GetLeague)
		v1.GET("/leagues/:id/standings", handler.LeagueStandings)
		v1.GET("/leagues/:id/chart.png", handler.LeagueChart)

		editor := v1.Group("/")
		editor.Use(middleware.AuthRequired(services.Signer))
		{
			editor.POST("/players", handler.AddPlayer)
			editor.DELETE("/players/:name", handler.RemovePlayer)
			editor.PUT("/settings/rules", handler.SaveRules)
			editor.DELETE("/settings/rules", handler.ResetRules)

			editor.POST("/sessions", handler.CreateSession)
			editor.DELETE("/sessions/:id", handler.DeleteSession)
			editor.PUT("/sessions/:id/rate", handler.SetRate)
			editor.PUT("/sessions/:id/lock", handler.SetLock)
			editor.PUT("/sessions/:id/rules", handler.UpdateSessionRules)
			editor.PUT("/sessions/:id/league", handler.AttachLeague)
			editor.DELETE("/sessions/:id/league", handler.DetachLeague)

			editor.POST("/sessions/:id/matches", handler.SubmitMatch)
			editor.PUT("/sessions/:id/matches/:matchId", handler.UpdateMatch)
			editor.DELETE("/sessions/:id/matches/:matchId", handler.RemoveMatch)
			editor.POST("/tiebreaks/:token/select", handler.SelectTieBreak)
			editor.POST("/tiebreaks/:token/reset", handler.ResetTieBreak)
			editor.DELETE("/tiebreaks/:token", handler.CancelTieBreak)

			editor.POST("/sessions/:id/expenses", handler.AddExpense)
			editor.DELETE("/sessions/:id/expenses/:expenseId", handler.RemoveExpense)

			editor.POST("/leagues", handler.CreateLeague)
			editor.PUT("/leagues/:id/complete", handler.CompleteLeague)
			editor.DELETE("/leagues/:id", handler.DeleteLeague)
			editor.DELETE("/leagues/:id/sessions/:sessionId", handler.UnlinkLeagueSession)
		}
	}

	r.GET("/ws/sessions/:id", wsHandler.HandleSessionWS)
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, appErr.ErrInvalidRules),
		errors.Is(err, appErr.ErrInvalidScoreInput),
		errors.Is(err, appErr.ErrInconsistentScores),
		errors.Is(err, appErr.ErrInvalidExpense),
		errors.Is(err, appErr.ErrInvalidSettlement),
		errors.Is(err, appErr.ErrInvalidSelection),
		errors.Is(err, appErr.ErrInvalidSession),
		errors.Is(err, appErr.ErrInvalidPlayerName),
		errors.Is(err, appErr.ErrInvalidLeague):
		status = http.StatusBadRequest
	case errors.Is(err, appErr.ErrSessionNotFound),
		errors.Is(err, appErr.ErrMatchNotFound),
		errors.Is(err, appErr.ErrExpenseNotFound),
		errors.Is(err, appErr.ErrPlayerNotFound),
		errors.Is(err, appErr.ErrLeagueNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appErr.ErrRulesInUse),
		errors.Is(err, appErr.ErrPlayerExists),
		errors.Is(err, appErr.ErrTieBreakState),
		errors.Is(err, gorm.ErrDuplicatedKey):
		status = http.StatusConflict
	case errors.Is(err, appErr.ErrTieBreakNotFound):
		status = http.StatusGone
	case errors.Is(err, appErr.ErrSessionLocked):
		status = http.StatusLocked
	}
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, status, err.Error())
}

func parseIDParam(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return 0, false
	}
	return id, true
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}
