package api

import (
	"fmt"
	"net/http"
	"strings"

	"jonglog-service/internal/service/expense"
	"jonglog-service/internal/service/session"
	"jonglog-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type createSessionBody struct {
	Date     string     `json:"date"`
	Players  []string   `json:"players" binding:"required,len=4"`
	Rules    *rulesBody `json:"rules"`
	Rate     float64    `json:"rate" binding:"min=0"`
	LeagueID *int64     `json:"leagueId"`
}

func (b createSessionBody) toParams() (session.CreateParams, error) {
	params := session.CreateParams{
		Players:  b.Players,
		Rate:     b.Rate,
		LeagueID: b.LeagueID,
	}
	if d := strings.TrimSpace(b.Date); d != "" {
		date, err := session.ParseDate(d)
		if err != nil {
			return params, err
		}
		params.Date = date
	}
	if b.Rules != nil {
		rules := b.Rules.toRules()
		params.Rules = &rules
	}
	return params, nil
}

type rateBody struct {
	Rate *float64 `json:"rate" binding:"required,min=0"`
}

type lockBody struct {
	Locked *bool `json:"locked" binding:"required"`
}

type attachLeagueBody struct {
	LeagueID int64 `json:"leagueId" binding:"required,min=1"`
}

type expenseBody struct {
	Note    string   `json:"note"`
	Payer   string   `json:"payer" binding:"required"`
	Amount  int64    `json:"amount" binding:"required,min=1"`
	Targets []string `json:"targets" binding:"required,min=1"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Sessions.List(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) CreateSession(c *gin.Context) {
	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	params, err := body.toParams()
	if err != nil {
		writeError(c, err)
		return
	}
	created, err := h.services.Sessions.Create(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, created)
}

func (h *Handler) GetSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.services.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Sessions.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *Handler) SetRate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body rateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.services.Sessions.SetRate(c.Request.Context(), id, *body.Rate)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) SetLock(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body lockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.services.Sessions.SetLocked(c.Request.Context(), id, *body.Locked)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) UpdateSessionRules(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body rulesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.services.Sessions.UpdateRules(c.Request.Context(), id, body.toRules())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) AttachLeague(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body attachLeagueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.services.Sessions.AttachLeague(c.Request.Context(), id, body.LeagueID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) DetachLeague(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	summary, err := h.services.Sessions.DetachLeague(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *Handler) GetSettlement(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.services.Settlements.Compute(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) ExportWorkbook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	body, err := h.services.Settlements.Workbook(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("session-%d.xlsx", id),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", body)
}

func (h *Handler) SessionChart(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	png, err := h.services.Settlements.Chart(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) AddExpense(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body expenseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.services.Expenses.Add(c.Request.Context(), id, expense.AddParams{
		Note:    body.Note,
		Payer:   body.Payer,
		Amount:  body.Amount,
		Targets: body.Targets,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, view)
}

func (h *Handler) RemoveExpense(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	expenseID, ok := parseIDParam(c, "expenseId")
	if !ok {
		return
	}
	if err := h.services.Expenses.Remove(c.Request.Context(), id, expenseID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
