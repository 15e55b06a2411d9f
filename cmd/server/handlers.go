package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/channels"
	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/moderation"
	"github.com/francisco-leal/ModBot/rules"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Persistent: s.app.DB != nil,
	})
}

func (s *Server) handleListRuleDefinitions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RuleDefinitionsResponse{Rules: s.app.Predicates.Definitions()})
}

func (s *Server) handleListActionDefinitions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ActionDefinitionsResponse{Actions: s.app.Actions.Definitions()})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	list, err := s.app.Channels.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list channels", err)
		return
	}
	if list == nil {
		list = []*rules.ModeratedChannel{}
	}
	respondJSON(w, http.StatusOK, ChannelsListResponse{Channels: list})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var channel rules.ModeratedChannel
	if err := decodeJSON(r, &channel); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.app.Channels.Create(r.Context(), &channel); err != nil {
		respondError(w, statusFor(err), "failed to create channel", err)
		return
	}

	created, err := s.app.Channels.Get(r.Context(), channel.ID)
	if err != nil {
		respondError(w, statusFor(err), "failed to load channel", err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := s.app.Channels.Get(r.Context(), chi.URLParam(r, "channelId"))
	if err != nil {
		respondError(w, statusFor(err), "channel not found", err)
		return
	}
	respondJSON(w, http.StatusOK, channel)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	var channel rules.ModeratedChannel
	if err := decodeJSON(r, &channel); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if channel.ID != "" && channel.ID != channelID {
		respondError(w, http.StatusBadRequest, "channel id does not match the url", nil)
		return
	}
	channel.ID = channelID

	if err := s.app.Channels.Update(r.Context(), &channel); err != nil {
		respondError(w, statusFor(err), "failed to update channel", err)
		return
	}

	updated, err := s.app.Channels.Get(r.Context(), channelID)
	if err != nil {
		respondError(w, statusFor(err), "failed to load channel", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handleSimulate runs a batch of casts against the stored configuration, or
// against the proposed one in the body, without side effects
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	var req SimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid simulation request", err)
		return
	}

	current, err := s.app.Channels.Get(r.Context(), channelID)
	if err != nil {
		respondError(w, statusFor(err), "channel not found", err)
		return
	}

	proposed := current
	if req.Channel != nil {
		proposed = req.Channel
		proposed.ID = channelID
		if err := channels.NewValidator(s.app.Predicates, s.app.Actions).Validate(proposed); err != nil {
			respondError(w, http.StatusBadRequest, "invalid proposed configuration", err)
			return
		}
	}

	report, err := s.app.Processor.Simulate(r.Context(), proposed, req.Casts)
	if err != nil {
		respondError(w, statusFor(err), "simulation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLogLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500", err)
			return
		}
		limit = n
	}

	if _, err := s.app.Channels.Get(r.Context(), channelID); err != nil {
		respondError(w, statusFor(err), "channel not found", err)
		return
	}

	entries, err := s.app.Logs.ListByChannel(r.Context(), channelID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list logs", err)
		return
	}
	if entries == nil {
		entries = []*moderation.LogEntry{}
	}
	respondJSON(w, http.StatusOK, LogsResponse{Logs: entries})
}

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	active, err := s.app.Cooldowns.ListActive(r.Context(), channelID, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list bans", err)
		return
	}
	if active == nil {
		active = []*actions.Cooldown{}
	}
	respondJSON(w, http.StatusOK, BansResponse{Bans: active})
}

func (s *Server) handleDeleteBan(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	fid, err := strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
	if err != nil || fid <= 0 {
		respondError(w, http.StatusBadRequest, "fid must be a positive integer", err)
		return
	}

	if err := s.app.Cooldowns.Deactivate(r.Context(), channelID, fid); err != nil {
		respondError(w, statusFor(err), "failed to lift ban", err)
		return
	}

	logger.Info("Ban lifted", "channel", channelID, "fid", fid)
	w.WriteHeader(http.StatusNoContent)
}

// handleCastWebhook receives cast.created events. Other event types are
// acknowledged and dropped.
func (s *Server) handleCastWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Type != "cast.created" {
		respondJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload", err)
		return
	}

	result, err := s.app.Processor.ProcessCast(r.Context(), req.Data)
	if err != nil {
		var actionErr *actions.ActionError
		if errors.As(err, &actionErr) && result != nil {
			respondJSON(w, http.StatusBadGateway, WebhookResponse{
				Status:    string(result.Status),
				ChannelID: result.ChannelID,
				Logs:      result.Logs,
				Error:     err.Error(),
			})
			return
		}
		respondError(w, statusFor(err), "failed to process cast", err)
		return
	}

	respondJSON(w, http.StatusOK, WebhookResponse{
		Status:    string(result.Status),
		ChannelID: result.ChannelID,
		Logs:      result.Logs,
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		validationErr *moderation.ValidationError
		fieldErrs     validator.ValidationErrors
		predicateErr  *rules.PredicateError
	)
	switch {
	case errors.Is(err, channels.ErrNotFound), errors.Is(err, actions.ErrCooldownNotFound):
		return http.StatusNotFound
	case errors.Is(err, channels.ErrExists):
		return http.StatusConflict
	case errors.Is(err, channels.ErrInvalidConfig), errors.Is(err, rules.ErrConfiguration),
		errors.As(err, &validationErr), errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &predicateErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20))
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
