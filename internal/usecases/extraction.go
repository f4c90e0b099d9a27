package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatmimic_connect/internal/entities"
	"chatmimic_connect/internal/interfaces"
)

// SheetConfigSource loads the tenant's active sheet extraction configs.
type SheetConfigSource interface {
	GetActiveSheetConfigs(schemaName string) ([]entities.SheetConfig, error)
}

// MessageCounter tells the dispatcher how many messages a chat holds, used by
// configs that only trigger on a contact's first message.
type MessageCounter interface {
	CountByChat(schemaName, phone string) (int, error)
}

// naValue fills columns the LLM could not determine.
const naValue = "N/A"

// ExtractionDispatcher turns inbound customer messages into spreadsheet rows.
// For every active sheet config it asks the LLM to extract the configured
// columns from the message and appends the result to the linked sheet. A
// failure for one config never blocks the others.
type ExtractionDispatcher struct {
	Configs  SheetConfigSource
	Messages MessageCounter // optional, needed for first_message triggers
	AI       interfaces.AIClient
	Sheets   interfaces.SheetWriter

	// TokenSource resolves the tenant's Google OAuth access token.
	TokenSource func(schemaName string) string

	markers *ProcessedMarkers
}

func NewExtractionDispatcher(configs SheetConfigSource, ai interfaces.AIClient, sheets interfaces.SheetWriter, tokenSource func(string) string) *ExtractionDispatcher {
	return &ExtractionDispatcher{
		Configs:     configs,
		AI:          ai,
		Sheets:      sheets,
		TokenSource: tokenSource,
		markers:     NewProcessedMarkers(defaultMarkerTTL),
	}
}

// Markers exposes the in-memory dedup set (for stats).
func (d *ExtractionDispatcher) Markers() *ProcessedMarkers {
	return d.markers
}

// Process runs every active sheet config against one message. Customer
// messages only; re-delivery of an already processed message ID within the
// retention window is a no-op.
func (d *ExtractionDispatcher) Process(ctx context.Context, schemaName string, msg entities.Message) {
	if !msg.IsInbound() {
		return
	}
	if d.markers.Seen(msg.ChatPhone, msg.ID) {
		return
	}

	configs, err := d.Configs.GetActiveSheetConfigs(schemaName)
	if err != nil {
		fmt.Printf("[EXTRACT] Failed to load sheet configs for %s: %v\n", schemaName, err)
		return
	}
	if len(configs) == 0 {
		return
	}

	for _, cfg := range configs {
		if d.skipByTrigger(schemaName, cfg, msg) {
			continue
		}

		record := d.ExtractFields(ctx, cfg, msg)
		record["phone_number"] = msg.ChatPhone

		token := ""
		if d.TokenSource != nil {
			token = d.TokenSource(schemaName)
		}
		if token == "" {
			fmt.Printf("[EXTRACT] No Google access token for %s, skipping sheet %s\n", schemaName, cfg.Name)
			continue
		}

		row := recordToRow(cfg, record)
		if err := d.Sheets.AppendRow(ctx, token, cfg.SheetID, row); err != nil {
			fmt.Printf("[EXTRACT] Append to sheet %s failed: %v\n", cfg.Name, err)
			continue
		}
		fmt.Printf("[EXTRACT] Appended row for %s to sheet %s\n", msg.ChatPhone, cfg.Name)
	}

	d.markers.Mark(msg.ChatPhone, msg.ID)
}

// skipByTrigger honours the config's add trigger. "first_message" configs
// only fire for a contact's very first message.
func (d *ExtractionDispatcher) skipByTrigger(schemaName string, cfg entities.SheetConfig, msg entities.Message) bool {
	if cfg.AddTrigger != "first_message" || d.Messages == nil {
		return false
	}
	count, err := d.Messages.CountByChat(schemaName, msg.ChatPhone)
	if err != nil {
		fmt.Printf("[EXTRACT] Message count failed for %s: %v\n", msg.ChatPhone, err)
		return false
	}
	return count > 1
}

// ExtractFields asks the LLM to fill the config's columns from the message.
// Never fails: LLM errors or malformed output produce an all-N/A record.
func (d *ExtractionDispatcher) ExtractFields(ctx context.Context, cfg entities.SheetConfig, msg entities.Message) map[string]string {
	system, user := buildExtractionPrompt(cfg, msg)

	raw, err := d.AI.Complete(ctx, system, user, 0.1)
	if err != nil {
		fmt.Printf("[EXTRACT] LLM call failed for sheet %s: %v\n", cfg.Name, err)
		return naRecord(cfg)
	}

	record, err := parseExtraction(raw, cfg)
	if err != nil {
		fmt.Printf("[EXTRACT] Unparseable LLM output for sheet %s: %v\n", cfg.Name, err)
		return naRecord(cfg)
	}
	return record
}

func buildExtractionPrompt(cfg entities.SheetConfig, msg entities.Message) (string, string) {
	var sb strings.Builder
	sb.WriteString("You extract structured data from WhatsApp messages.\n")
	sb.WriteString("Extract the following fields:\n")
	for _, col := range cfg.Columns {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s", col.ID, col.Name, col.Description))
		if col.AIPrompt != "" {
			sb.WriteString(" " + col.AIPrompt)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Respond ONLY with a JSON object keyed by the field ids above. ")
	sb.WriteString(`Use "N/A" for any field the message does not contain.`)

	return sb.String(), "Message: " + msg.Content
}

// parseExtraction decodes the LLM response, tolerating markdown code fences,
// and guarantees every configured column is present.
func parseExtraction(raw string, cfg entities.SheetConfig) (map[string]string, error) {
	cleaned := stripCodeFences(raw)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, err
	}

	record := make(map[string]string, len(cfg.Columns))
	for _, col := range cfg.Columns {
		v, ok := decoded[col.ID]
		if !ok || v == nil {
			record[col.ID] = naValue
			continue
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				record[col.ID] = naValue
			} else {
				record[col.ID] = val
			}
		case float64:
			record[col.ID] = strings.TrimSuffix(fmt.Sprintf("%f", val), ".000000")
		case bool:
			record[col.ID] = fmt.Sprintf("%t", val)
		default:
			record[col.ID] = naValue
		}
	}
	return record, nil
}

// stripCodeFences removes a ```json ... ``` (or plain ```) wrapper.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.HasPrefix(s, "{") {
		// Drop the language tag line ("json")
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func naRecord(cfg entities.SheetConfig) map[string]string {
	record := make(map[string]string, len(cfg.Columns))
	for _, col := range cfg.Columns {
		record[col.ID] = naValue
	}
	return record
}

// recordToRow orders extracted values by the config's column order. Columns
// of type "phone" receive the injected phone number.
func recordToRow(cfg entities.SheetConfig, record map[string]string) []string {
	row := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		if col.Type == "phone" {
			row = append(row, record["phone_number"])
			continue
		}
		v, ok := record[col.ID]
		if !ok {
			v = naValue
		}
		row = append(row, v)
	}
	return row
}

// SyncContact is the find-then-update path used by the dashboard's manual
// sheet sync: rows are matched on the phone column and updated in place
// instead of blindly appended.
func (d *ExtractionDispatcher) SyncContact(ctx context.Context, schemaName string, contact entities.Contact) error {
	configs, err := d.Configs.GetActiveSheetConfigs(schemaName)
	if err != nil {
		return fmt.Errorf("load sheet configs: %w", err)
	}

	token := ""
	if d.TokenSource != nil {
		token = d.TokenSource(schemaName)
	}
	if token == "" {
		return fmt.Errorf("no Google access token configured")
	}

	msg := entities.Message{
		ID:        fmt.Sprintf("sync-%s-%d", contact.PhoneNumber, time.Now().Unix()),
		ChatPhone: contact.PhoneNumber,
		Content:   contact.LastMessage,
		Sender:    entities.SenderUser,
		Timestamp: time.Now(),
	}

	var firstErr error
	for _, cfg := range configs {
		phoneCol := cfg.PhoneColumn()
		if phoneCol == nil {
			continue
		}
		phoneIndex := 0
		for i, col := range cfg.Columns {
			if col.ID == phoneCol.ID {
				phoneIndex = i
				break
			}
		}

		record := d.ExtractFields(ctx, cfg, msg)
		record["phone_number"] = contact.PhoneNumber
		row := recordToRow(cfg, record)

		rowIndex, err := d.Sheets.FindRowByValue(ctx, token, cfg.SheetID, phoneIndex, contact.PhoneNumber)
		if err != nil {
			fmt.Printf("[EXTRACT] Row lookup failed for sheet %s: %v\n", cfg.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if rowIndex > 0 {
			err = d.Sheets.UpdateRow(ctx, token, cfg.SheetID, rowIndex, row)
		} else {
			err = d.Sheets.AppendRow(ctx, token, cfg.SheetID, row)
		}
		if err != nil {
			fmt.Printf("[EXTRACT] Sync to sheet %s failed: %v\n", cfg.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
