package entities

import "time"

// LifecycleRule maps message keywords to a CRM stage. Rules belong to one
// tenant and are evaluated in Position order; the first rule with any keyword
// contained in the message wins. Name is written verbatim as the stage label.
type LifecycleRule struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"` // target stage label, e.g. "hot_lead"
	Keywords []string `json:"keywords"`
	Active   bool     `json:"active"`
	Position int      `json:"position"`
}

// SheetColumn describes one column of a linked spreadsheet and how the LLM
// should fill it.
type SheetColumn struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"` // text / phone / number / date
	AIPrompt    string `json:"ai_prompt"`
}

// SheetConfig links a tenant to one Google spreadsheet. A tenant may have
// several active configs; every inbound message is run against each of them
// independently.
type SheetConfig struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	SheetID     string        `json:"sheet_id"` // Google spreadsheet identifier
	Columns     []SheetColumn `json:"columns"`
	Active      bool          `json:"active"`
	AddTrigger  string        `json:"add_trigger"` // "all_messages" or "first_message"
	LastUpdated time.Time     `json:"last_updated"`
}

// PhoneColumn returns the first column of type "phone", or nil.
func (c *SheetConfig) PhoneColumn() *SheetColumn {
	for i := range c.Columns {
		if c.Columns[i].Type == "phone" {
			return &c.Columns[i]
		}
	}
	return nil
}
