package usecases

import (
	"context"
	"testing"
)

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(schemaName, key string) (string, error) {
	return f.values[key], nil
}

func TestReplyServiceDisabled(t *testing.T) {
	ai := &fakeAI{response: "should not be called"}
	svc := NewReplyService(&fakeSettings{values: map[string]string{}}, ai)

	reply, enabled, err := svc.GenerateReply(context.Background(), "tenant_1", inboundMsg("halo"))
	if err != nil {
		t.Fatalf("GenerateReply returned error: %v", err)
	}
	if enabled || reply != "" {
		t.Errorf("enabled=%v reply=%q, want disabled and empty", enabled, reply)
	}
	if ai.calls != 0 {
		t.Errorf("LLM called %d times while disabled, want 0", ai.calls)
	}
}

func TestReplyServiceUsesTenantPrompt(t *testing.T) {
	ai := &fakeAI{response: "Halo! Ada yang bisa dibantu?"}
	settings := &fakeSettings{values: map[string]string{
		"auto_reply_enabled": "true",
		"system_prompt":      "You sell shoes.",
	}}
	svc := NewReplyService(settings, ai)

	reply, enabled, err := svc.GenerateReply(context.Background(), "tenant_1", inboundMsg("halo"))
	if err != nil {
		t.Fatalf("GenerateReply returned error: %v", err)
	}
	if !enabled {
		t.Fatal("expected auto-reply enabled")
	}
	if reply != "Halo! Ada yang bisa dibantu?" {
		t.Errorf("reply = %q", reply)
	}
}

func TestReplyServiceDefaultPrompt(t *testing.T) {
	ai := &fakeAI{response: "ok"}
	settings := &fakeSettings{values: map[string]string{
		"auto_reply_enabled": "true",
	}}
	svc := NewReplyService(settings, ai)

	if _, enabled, err := svc.GenerateReply(context.Background(), "tenant_1", inboundMsg("halo")); err != nil || !enabled {
		t.Fatalf("enabled=%v err=%v, want enabled with no error", enabled, err)
	}
	if ai.calls != 1 {
		t.Errorf("LLM called %d times, want 1", ai.calls)
	}
}
