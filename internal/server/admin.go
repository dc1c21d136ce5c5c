package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"floorbot/internal/domain"
)

const maxListLimit = 500

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// limitParam reads ?limit=; zero means the store default.
func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxListLimit {
		return 0, errors.New("limit must be an integer between 0 and 500")
	}
	return n, nil
}

// GET /api/admin/quotes?status=&limit=
func (s *Server) listQuotes(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	status := domain.QuoteStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return errorJSON(c, http.StatusBadRequest, "unknown quote status")
	}

	quotes, err := s.store.ListQuotes(c.Request().Context(), domain.QuoteFilter{Status: status, Limit: limit})
	if err != nil {
		s.logger.Error("list quotes", "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list quotes")
	}
	return c.JSON(http.StatusOK, map[string]any{"quotes": quotes, "count": len(quotes)})
}

// GET /api/admin/quotes/:id
func (s *Server) getQuote(c echo.Context) error {
	q, err := s.store.GetQuote(c.Request().Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "quote not found")
	}
	if err != nil {
		s.logger.Error("get quote", "id", c.Param("id"), "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load quote")
	}
	return c.JSON(http.StatusOK, q)
}

type statusRequest struct {
	Status domain.QuoteStatus `json:"status"`
}

// PATCH /api/admin/quotes/:id
func (s *Server) updateQuoteStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	id := c.Param("id")
	err := s.store.UpdateQuoteStatus(c.Request().Context(), id, req.Status)
	switch {
	case errors.Is(err, domain.ErrInvalidStatus):
		return errorJSON(c, http.StatusBadRequest, "unknown quote status")
	case errors.Is(err, domain.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "quote not found")
	case err != nil:
		s.logger.Error("update quote status", "id", id, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to update quote")
	}
	s.logger.Info("quote status updated", "id", id, "status", req.Status)
	return c.NoContent(http.StatusNoContent)
}

// GET /api/admin/conversations?limit=
func (s *Server) listConversations(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	convs, err := s.store.ListConversations(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("list conversations", "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list conversations")
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

// GET /api/admin/conversations/:phone
func (s *Server) getConversation(c echo.Context) error {
	ctx := c.Request().Context()
	phone := c.Param("phone")

	conv, err := s.store.GetConversation(ctx, phone)
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		s.logger.Error("get conversation", "phone", phone, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load conversation")
	}
	state, err := s.store.GetState(ctx, phone)
	if err != nil {
		s.logger.Error("get state", "phone", phone, "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load conversation state")
	}
	return c.JSON(http.StatusOK, map[string]any{"conversation": conv, "state": state})
}

// GET /api/admin/conversations/:phone/messages?limit=
func (s *Server) listMessages(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	msgs, err := s.store.ListMessages(c.Request().Context(), c.Param("phone"), limit)
	if err != nil {
		s.logger.Error("list messages", "phone", c.Param("phone"), "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

// GET /api/admin/stats
func (s *Server) stats(c echo.Context) error {
	st, err := s.store.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats", "err", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to compute stats")
	}
	return c.JSON(http.StatusOK, st)
}
