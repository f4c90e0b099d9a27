package interfaces

import "context"

type AIClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

type Messenger interface {
	SendMessage(to, content string) error
}

type SheetWriter interface {
	AppendRow(ctx context.Context, accessToken, spreadsheetID string, values []string) error
	FindRowByValue(ctx context.Context, accessToken, spreadsheetID string, columnIndex int, value string) (int, error)
	UpdateRow(ctx context.Context, accessToken, spreadsheetID string, rowIndex int, values []string) error
}
