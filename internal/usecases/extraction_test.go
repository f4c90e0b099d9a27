package usecases

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"chatmimic_connect/internal/entities"
)

type fakeConfigSource struct {
	configs []entities.SheetConfig
}

func (f *fakeConfigSource) GetActiveSheetConfigs(schemaName string) ([]entities.SheetConfig, error) {
	return f.configs, nil
}

type fakeAI struct {
	response string
	err      error
	calls    int
}

func (f *fakeAI) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	f.calls++
	return f.response, f.err
}

type fakeSheetWriter struct {
	appended   map[string][][]string // sheetID -> rows
	updated    map[string][][]string
	failSheets map[string]bool
	rowIndex   int
}

func newFakeSheetWriter() *fakeSheetWriter {
	return &fakeSheetWriter{
		appended:   make(map[string][][]string),
		updated:    make(map[string][][]string),
		failSheets: make(map[string]bool),
	}
}

func (f *fakeSheetWriter) AppendRow(ctx context.Context, accessToken, spreadsheetID string, values []string) error {
	if f.failSheets[spreadsheetID] {
		return errors.New("append rejected")
	}
	f.appended[spreadsheetID] = append(f.appended[spreadsheetID], values)
	return nil
}

func (f *fakeSheetWriter) FindRowByValue(ctx context.Context, accessToken, spreadsheetID string, columnIndex int, value string) (int, error) {
	return f.rowIndex, nil
}

func (f *fakeSheetWriter) UpdateRow(ctx context.Context, accessToken, spreadsheetID string, rowIndex int, values []string) error {
	f.updated[spreadsheetID] = append(f.updated[spreadsheetID], values)
	return nil
}

type fakeCounter struct {
	count int
}

func (f *fakeCounter) CountByChat(schemaName, phone string) (int, error) {
	return f.count, nil
}

func leadConfig(sheetID string) entities.SheetConfig {
	return entities.SheetConfig{
		ID:      "cfg-" + sheetID,
		Name:    "Leads " + sheetID,
		SheetID: sheetID,
		Columns: []entities.SheetColumn{
			{ID: "col_phone", Name: "Phone", Type: "phone"},
			{ID: "col_name", Name: "Name", Description: "Customer name", Type: "text"},
			{ID: "col_interest", Name: "Interest", Description: "Product of interest", Type: "text"},
		},
		Active:     true,
		AddTrigger: "all_messages",
	}
}

func staticToken(string) string { return "tok-123" }

func newTestDispatcher(configs []entities.SheetConfig, ai *fakeAI, sheets *fakeSheetWriter) *ExtractionDispatcher {
	d := NewExtractionDispatcher(&fakeConfigSource{configs: configs}, ai, sheets, staticToken)
	d.Messages = &fakeCounter{count: 1}
	return d
}

func TestExtractionAppendsRowWithPhoneInjected(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

	d.Process(context.Background(), "tenant_1", inboundMsg("halo, saya Budi, mau tanya sepatu"))

	rows := sheets.appended["sheet-a"]
	if len(rows) != 1 {
		t.Fatalf("appended %d rows, want 1", len(rows))
	}
	want := []string{"628111222333", "Budi", "sepatu"}
	if !reflect.DeepEqual(rows[0], want) {
		t.Errorf("row = %v, want %v", rows[0], want)
	}
}

func TestExtractionStripsCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"json fence", "```json\n{\"col_name\": \"Budi\", \"col_interest\": \"sepatu\"}\n```"},
		{"bare fence", "```\n{\"col_name\": \"Budi\", \"col_interest\": \"sepatu\"}\n```"},
		{"no fence", `{"col_name": "Budi", "col_interest": "sepatu"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &fakeAI{response: tt.response}
			sheets := newFakeSheetWriter()
			d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

			d.Process(context.Background(), "tenant_1", inboundMsg("halo"))

			rows := sheets.appended["sheet-a"]
			if len(rows) != 1 {
				t.Fatalf("appended %d rows, want 1", len(rows))
			}
			if rows[0][1] != "Budi" {
				t.Errorf("name column = %q, want Budi", rows[0][1])
			}
		})
	}
}

func TestExtractionFallsBackToNA(t *testing.T) {
	tests := []struct {
		name string
		ai   *fakeAI
	}{
		{"llm error", &fakeAI{err: errors.New("model overloaded")}},
		{"malformed json", &fakeAI{response: "sorry, I cannot do that"}},
		{"missing fields", &fakeAI{response: `{}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheets := newFakeSheetWriter()
			d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, tt.ai, sheets)

			d.Process(context.Background(), "tenant_1", inboundMsg("halo"))

			rows := sheets.appended["sheet-a"]
			if len(rows) != 1 {
				t.Fatalf("appended %d rows, want 1 (failures must still produce a row)", len(rows))
			}
			// Phone survives, extracted fields degrade to N/A
			want := []string{"628111222333", "N/A", "N/A"}
			if !reflect.DeepEqual(rows[0], want) {
				t.Errorf("row = %v, want %v", rows[0], want)
			}
		})
	}
}

func TestExtractionConfigFailureIsolated(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	sheets.failSheets["sheet-a"] = true
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a"), leadConfig("sheet-b")}, ai, sheets)

	d.Process(context.Background(), "tenant_1", inboundMsg("halo"))

	if len(sheets.appended["sheet-b"]) != 1 {
		t.Errorf("sheet-b got %d rows, want 1 (sheet-a failure must not block it)", len(sheets.appended["sheet-b"]))
	}
}

func TestExtractionSkipsDuplicateMessage(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

	msg := inboundMsg("halo")
	d.Process(context.Background(), "tenant_1", msg)
	d.Process(context.Background(), "tenant_1", msg)

	if len(sheets.appended["sheet-a"]) != 1 {
		t.Errorf("appended %d rows, want 1 (redelivery must be a no-op)", len(sheets.appended["sheet-a"]))
	}
	if ai.calls != 1 {
		t.Errorf("LLM called %d times, want 1", ai.calls)
	}
}

func TestExtractionIgnoresOutboundMessages(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

	msg := inboundMsg("halo")
	msg.Sender = entities.SenderAgent
	d.Process(context.Background(), "tenant_1", msg)

	if len(sheets.appended["sheet-a"]) != 0 {
		t.Errorf("appended %d rows for an outbound message, want 0", len(sheets.appended["sheet-a"]))
	}
	if ai.calls != 0 {
		t.Errorf("LLM called %d times for an outbound message, want 0", ai.calls)
	}
}

func TestExtractionFirstMessageTrigger(t *testing.T) {
	cfg := leadConfig("sheet-a")
	cfg.AddTrigger = "first_message"

	tests := []struct {
		name     string
		msgCount int
		wantRows int
	}{
		{"first message fires", 1, 1},
		{"later message skipped", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
			sheets := newFakeSheetWriter()
			d := NewExtractionDispatcher(&fakeConfigSource{configs: []entities.SheetConfig{cfg}}, ai, sheets, staticToken)
			d.Messages = &fakeCounter{count: tt.msgCount}

			d.Process(context.Background(), "tenant_1", inboundMsg("halo"))

			if len(sheets.appended["sheet-a"]) != tt.wantRows {
				t.Errorf("appended %d rows, want %d", len(sheets.appended["sheet-a"]), tt.wantRows)
			}
		})
	}
}

func TestExtractionSkipsWithoutToken(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	d := NewExtractionDispatcher(&fakeConfigSource{configs: []entities.SheetConfig{leadConfig("sheet-a")}}, ai, sheets, func(string) string { return "" })

	d.Process(context.Background(), "tenant_1", inboundMsg("halo"))

	if len(sheets.appended["sheet-a"]) != 0 {
		t.Errorf("appended %d rows without a token, want 0", len(sheets.appended["sheet-a"]))
	}
}

func TestSyncContactUpdatesExistingRow(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	sheets.rowIndex = 7
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

	contact := entities.Contact{PhoneNumber: "628111222333", LastMessage: "mau sepatu"}
	if err := d.SyncContact(context.Background(), "tenant_1", contact); err != nil {
		t.Fatalf("SyncContact returned error: %v", err)
	}

	if len(sheets.updated["sheet-a"]) != 1 {
		t.Fatalf("updated %d rows, want 1", len(sheets.updated["sheet-a"]))
	}
	if len(sheets.appended["sheet-a"]) != 0 {
		t.Errorf("appended %d rows, want 0 when the row exists", len(sheets.appended["sheet-a"]))
	}
}

func TestSyncContactAppendsWhenMissing(t *testing.T) {
	ai := &fakeAI{response: `{"col_name": "Budi", "col_interest": "sepatu"}`}
	sheets := newFakeSheetWriter()
	sheets.rowIndex = 0
	d := newTestDispatcher([]entities.SheetConfig{leadConfig("sheet-a")}, ai, sheets)

	contact := entities.Contact{PhoneNumber: "628111222333", LastMessage: "mau sepatu"}
	if err := d.SyncContact(context.Background(), "tenant_1", contact); err != nil {
		t.Fatalf("SyncContact returned error: %v", err)
	}

	if len(sheets.appended["sheet-a"]) != 1 {
		t.Errorf("appended %d rows, want 1 when no existing row", len(sheets.appended["sheet-a"]))
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for i, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("case %d: stripCodeFences(%q) = %q, want %q", i, tt.in, got, tt.want)
		}
	}
}

func TestParseExtractionValueTypes(t *testing.T) {
	cfg := entities.SheetConfig{Columns: []entities.SheetColumn{
		{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
	}}
	record, err := parseExtraction(`{"a": "x", "b": 3, "c": true, "d": null}`, cfg)
	if err != nil {
		t.Fatalf("parseExtraction returned error: %v", err)
	}
	want := map[string]string{"a": "x", "b": "3", "c": "true", "d": "N/A"}
	if !reflect.DeepEqual(record, want) {
		t.Errorf("record = %v, want %v", record, want)
	}
}

func TestMarkersExpireAfterTTL(t *testing.T) {
	markers := NewProcessedMarkers(time.Hour)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := base
	markers.now = func() time.Time { return now }

	markers.Mark("628111222333", "msg-1")
	if !markers.Seen("628111222333", "msg-1") {
		t.Fatal("fresh marker should be seen")
	}

	now = base.Add(30 * time.Minute)
	if !markers.Seen("628111222333", "msg-1") {
		t.Fatal("marker inside the window should be seen")
	}

	now = base.Add(2 * time.Hour)
	if markers.Seen("628111222333", "msg-1") {
		t.Fatal("expired marker should not be seen")
	}

	// Insert prunes expired entries
	markers.Mark("628111222333", "msg-2")
	if markers.Size() != 1 {
		t.Errorf("size = %d after prune, want 1", markers.Size())
	}
}

func TestMarkersPerPhoneIsolation(t *testing.T) {
	markers := NewProcessedMarkers(time.Hour)
	markers.Mark("628111222333", "msg-1")

	if markers.Seen("628999888777", "msg-1") {
		t.Error("marker for one phone must not match another phone")
	}
}

func TestParseExtractionNumberFormatting(t *testing.T) {
	cfg := entities.SheetConfig{Columns: []entities.SheetColumn{{ID: "n"}}}
	record, err := parseExtraction(`{"n": 42}`, cfg)
	if err != nil {
		t.Fatalf("parseExtraction returned error: %v", err)
	}
	if record["n"] != "42" {
		t.Errorf("n = %q, want 42", record["n"])
	}
}
