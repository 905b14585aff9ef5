package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	apperrors "github.com/satoshiwasHere/alx-polly/internal/platform/errors"
)

const (
	maxTitleLen    = 200
	maxOptionLen   = 200
	maxOptions     = 50
	maxPollIDLen   = 64
	maxOptionIDLen = 64
)

type voteRequest struct {
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
}

type optionRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type createPollRequest struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Options   []optionRequest `json:"options"`
	Active    *bool           `json:"active"`
	ExpiresAt *time.Time      `json:"expiresAt"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleCastVote(c echo.Context) error {
	ctx := c.Request().Context()

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if id := c.Param("id"); id != "" {
		req.PollID = id
	}
	req.PollID = strings.TrimSpace(req.PollID)
	req.OptionID = strings.TrimSpace(req.OptionID)
	if req.PollID == "" || req.OptionID == "" {
		return apperrors.ValidationError("pollId and optionId are required")
	}
	if len(req.PollID) > maxPollIDLen || len(req.OptionID) > maxOptionIDLen {
		return apperrors.ValidationError("pollId or optionId too long")
	}

	voter, err := userID(c)
	if err != nil {
		return err
	}
	if voter == "" && s.config.RequireVoterID {
		return apperrors.ValidationError(userIDHeader + " header is required to vote")
	}

	poll, err := s.app.CastVote(ctx, domain.Ballot{PollID: req.PollID, OptionID: req.OptionID, VoterID: voter})
	if err != nil {
		return toAppError(err, req.PollID)
	}

	if err := c.JSON(http.StatusOK, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListPolls(c echo.Context) error {
	polls, err := s.app.ListPolls(c.Request().Context())
	if err != nil {
		return toAppError(err, "")
	}
	if err := c.JSON(http.StatusOK, polls); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	pollID := c.Param("id")
	poll, err := s.app.GetPoll(c.Request().Context(), pollID)
	if err != nil {
		return toAppError(err, pollID)
	}
	if err := c.JSON(http.StatusOK, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	ctx := c.Request().Context()

	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateCreate(req, s.clock.Now()); err != nil {
		return err
	}

	creator, err := userID(c)
	if err != nil {
		return err
	}

	poll := domain.Poll{
		ID:        strings.TrimSpace(req.ID),
		Title:     strings.TrimSpace(req.Title),
		Active:    req.Active == nil || *req.Active,
		ExpiresAt: req.ExpiresAt,
	}
	for _, o := range req.Options {
		poll.Options = append(poll.Options, domain.Option{ID: strings.TrimSpace(o.ID), Text: strings.TrimSpace(o.Text)})
	}

	created, err := s.app.CreatePoll(ctx, poll, creator)
	if err != nil {
		return toAppError(err, poll.ID)
	}

	if err := c.JSON(http.StatusCreated, created); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func validateCreate(req createPollRequest, now time.Time) error {
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.ValidationError("title is required")
	}
	if len(req.Title) > maxTitleLen {
		return apperrors.ValidationError("title too long").WithField("max_length", maxTitleLen)
	}
	if len(req.ID) > maxPollIDLen {
		return apperrors.ValidationError("id too long").WithField("max_length", maxPollIDLen)
	}
	if len(req.Options) < domain.MinOptions || len(req.Options) > maxOptions {
		return apperrors.ValidationError(fmt.Sprintf("a poll needs between %d and %d options", domain.MinOptions, maxOptions))
	}
	for i, o := range req.Options {
		if strings.TrimSpace(o.Text) == "" {
			return apperrors.ValidationError("option text is required").WithField("option_index", i)
		}
		if len(o.Text) > maxOptionLen || len(o.ID) > maxOptionIDLen {
			return apperrors.ValidationError("option too long").WithField("option_index", i)
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return apperrors.ValidationError("expiresAt must be in the future")
	}
	return nil
}

func (s *Server) handleSetActive(c echo.Context) error {
	ctx := c.Request().Context()
	pollID := c.Param("id")

	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Active == nil {
		return apperrors.ValidationError("active is required")
	}

	user, err := userID(c)
	if err != nil {
		return err
	}

	poll, err := s.app.SetActive(ctx, pollID, *req.Active, user)
	if err != nil {
		return toAppError(err, pollID)
	}

	if err := c.JSON(http.StatusOK, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDeletePoll(c echo.Context) error {
	pollID := c.Param("id")

	user, err := userID(c)
	if err != nil {
		return err
	}

	if err := s.app.DeletePoll(c.Request().Context(), pollID, user); err != nil {
		return toAppError(err, pollID)
	}
	return c.NoContent(http.StatusNoContent)
}
