package main

import (
	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/moderation"
	"github.com/francisco-leal/ModBot/rules"
)

// API Request and Response Models with Swagger annotations

// HealthResponse represents the health check result
type HealthResponse struct {
	Status     string `json:"status" example:"healthy"`
	Persistent bool   `json:"persistent" example:"true"`
	Error      string `json:"error,omitempty"`
} // @name HealthResponse

// RuleDefinitionsResponse lists every registered rule
type RuleDefinitionsResponse struct {
	Rules []rules.Definition `json:"rules"`
} // @name RuleDefinitionsResponse

// ActionDefinitionsResponse lists every registered action
type ActionDefinitionsResponse struct {
	Actions []actions.Definition `json:"actions"`
} // @name ActionDefinitionsResponse

// ChannelsListResponse represents the response for listing channels
type ChannelsListResponse struct {
	Channels []*rules.ModeratedChannel `json:"channels"`
} // @name ChannelsListResponse

// SimulationRequest represents the request body for a simulation run.
// Channel is optional; the stored configuration is used without it.
type SimulationRequest struct {
	Channel *rules.ModeratedChannel `json:"channel,omitempty"`
	Casts   []*farcaster.Cast       `json:"casts" validate:"required,min=1,max=500,dive,required"`
} // @name SimulationRequest

// LogsResponse represents the moderation history of a channel
type LogsResponse struct {
	Logs []*moderation.LogEntry `json:"logs"`
} // @name LogsResponse

// BansResponse lists the cooldowns and bans in effect for a channel
type BansResponse struct {
	Bans []*actions.Cooldown `json:"bans"`
} // @name BansResponse

// WebhookRequest is the cast event delivered by the Farcaster provider
type WebhookRequest struct {
	Type      string          `json:"type" example:"cast.created" validate:"required"`
	CreatedAt int64           `json:"created_at,omitempty" example:"1717200000"`
	Data      *farcaster.Cast `json:"data" validate:"required"`
} // @name WebhookRequest

// WebhookResponse reports what happened to a delivered cast
type WebhookResponse struct {
	Status    string                 `json:"status" example:"moderated"`
	ChannelID string                 `json:"channelId,omitempty" example:"degen"`
	Logs      []*moderation.LogEntry `json:"logs,omitempty"`
	Error     string                 `json:"error,omitempty"`
} // @name WebhookResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"Invalid request"`
	Details string `json:"details,omitempty" example:"Field 'casts' is required"`
} // @name ErrorResponse
