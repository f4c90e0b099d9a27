package usecases

import (
	"context"
	"fmt"
	"strings"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/interfaces"
)

// SettingSource reads a single tenant setting by key.
type SettingSource interface {
	GetSetting(schemaName, key string) (string, error)
}

const defaultSystemPrompt = "You are a helpful customer service assistant. Answer briefly and politely."

// ReplyService generates AI responses for inbound customer messages when the
// tenant has auto-reply switched on. Sending (and rate limiting) is the
// caller's job.
type ReplyService struct {
	Settings SettingSource
	AI       interfaces.AIClient
}

func NewReplyService(settings SettingSource, ai interfaces.AIClient) *ReplyService {
	return &ReplyService{Settings: settings, AI: ai}
}

// GenerateReply produces a response for the message, or ("", false, nil) when
// auto-reply is disabled for the tenant.
func (s *ReplyService) GenerateReply(ctx context.Context, schemaName string, msg entities.Message) (string, bool, error) {
	enabled, err := s.Settings.GetSetting(schemaName, "auto_reply_enabled")
	if err != nil {
		return "", false, fmt.Errorf("read auto_reply_enabled: %w", err)
	}
	if enabled != "true" {
		return "", false, nil
	}

	systemPrompt, err := s.Settings.GetSetting(schemaName, "system_prompt")
	if err != nil {
		return "", false, fmt.Errorf("read system_prompt: %w", err)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	reply, err := s.AI.Complete(ctx, systemPrompt, msg.Content, 0.7)
	if err != nil {
		return "", true, fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", true, fmt.Errorf("empty reply from model")
	}
	return reply, true, nil
}
