package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func withSheetsServer(t *testing.T, handler http.HandlerFunc) *SheetsClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	orig := sheetsBaseURL
	sheetsBaseURL = server.URL
	t.Cleanup(func() { sheetsBaseURL = orig })

	return NewSheetsClient()
}

func TestSheetsAppendRow(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	var gotBody valueRange

	client := withSheetsServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	})

	err := client.AppendRow(context.Background(), "tok", "sheet-123", []string{"628111", "Budi", "sepatu"})
	if err != nil {
		t.Fatalf("AppendRow returned error: %v", err)
	}

	if gotPath != "/sheet-123/values/A1:append" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "valueInputOption=USER_ENTERED") || !strings.Contains(gotQuery, "insertDataOption=INSERT_ROWS") {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody.Values) != 1 || len(gotBody.Values[0]) != 3 {
		t.Errorf("body values = %v", gotBody.Values)
	}
}

func TestSheetsUpdateRow(t *testing.T) {
	var gotPath, gotMethod string

	client := withSheetsServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Write([]byte(`{}`))
	})

	err := client.UpdateRow(context.Background(), "tok", "sheet-123", 7, []string{"x"})
	if err != nil {
		t.Fatalf("UpdateRow returned error: %v", err)
	}
	if gotMethod != "PUT" {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/sheet-123/values/A7" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestSheetsFindRowByValue(t *testing.T) {
	client := withSheetsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/values/B:B") {
			t.Errorf("path = %q, want column B range", r.URL.Path)
		}
		w.Write([]byte(`{"values":[["phone"],["628000"],["628111"]]}`))
	})

	row, err := client.FindRowByValue(context.Background(), "tok", "sheet-123", 1, "628111")
	if err != nil {
		t.Fatalf("FindRowByValue returned error: %v", err)
	}
	if row != 3 {
		t.Errorf("row = %d, want 3", row)
	}
}

func TestSheetsFindRowByValueNotFound(t *testing.T) {
	client := withSheetsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[["628000"]]}`))
	})

	row, err := client.FindRowByValue(context.Background(), "tok", "sheet-123", 0, "628999")
	if err != nil {
		t.Fatalf("FindRowByValue returned error: %v", err)
	}
	if row != 0 {
		t.Errorf("row = %d, want 0 for missing value", row)
	}
}

func TestSheetsAPIError(t *testing.T) {
	client := withSheetsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"status":"UNAUTHENTICATED"}}`))
	})

	err := client.AppendRow(context.Background(), "expired", "sheet-123", []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want 401 status", err.Error())
	}
}

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
	}
	for _, tt := range tests {
		if got := columnLetter(tt.index); got != tt.want {
			t.Errorf("columnLetter(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}
