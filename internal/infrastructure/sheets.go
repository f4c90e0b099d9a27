package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// sheetsBaseURL is the Google Sheets API base. Variable for test injection.
var sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// SheetsClient performs row-level I/O against the Google Sheets values API.
// The OAuth access token is per tenant and passed on each call; the client
// itself holds no credentials.
type SheetsClient struct {
	httpClient *http.Client
}

func NewSheetsClient() *SheetsClient {
	return &SheetsClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type valueRange struct {
	Values [][]string `json:"values"`
}

// AppendRow appends a single row after the last row of the first sheet.
func (c *SheetsClient) AppendRow(ctx context.Context, accessToken, spreadsheetID string, values []string) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		sheetsBaseURL, url.PathEscape(spreadsheetID), url.PathEscape("A1"))
	return c.writeValues(ctx, accessToken, "POST", endpoint, values)
}

// UpdateRow overwrites the given 1-based row with the provided values.
func (c *SheetsClient) UpdateRow(ctx context.Context, accessToken, spreadsheetID string, rowIndex int, values []string) error {
	rng := fmt.Sprintf("A%d", rowIndex)
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=USER_ENTERED",
		sheetsBaseURL, url.PathEscape(spreadsheetID), url.PathEscape(rng))
	return c.writeValues(ctx, accessToken, "PUT", endpoint, values)
}

// FindRowByValue scans one column (0-based index) for an exact cell match and
// returns the 1-based row number, or 0 when not found.
func (c *SheetsClient) FindRowByValue(ctx context.Context, accessToken, spreadsheetID string, columnIndex int, value string) (int, error) {
	col := columnLetter(columnIndex)
	rng := fmt.Sprintf("%s:%s", col, col)
	endpoint := fmt.Sprintf("%s/%s/values/%s", sheetsBaseURL, url.PathEscape(spreadsheetID), url.PathEscape(rng))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("Sheets API returned %d: %s", resp.StatusCode, string(body))
	}

	var vr valueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}

	for i, row := range vr.Values {
		if len(row) > 0 && row[0] == value {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (c *SheetsClient) writeValues(ctx context.Context, accessToken, method, endpoint string, values []string) error {
	payload := valueRange{Values: [][]string{values}}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("Sheets API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// columnLetter converts a 0-based column index to its A1 letter ("A", "B", ... "AA").
func columnLetter(index int) string {
	letters := ""
	index++
	for index > 0 {
		index--
		letters = string(rune('A'+index%26)) + letters
		index /= 26
	}
	return letters
}
