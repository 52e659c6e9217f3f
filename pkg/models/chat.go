package models

// ChatRequest is the inbound chat message body.
type ChatRequest struct {
	Message      string `json:"message"`
	Token        string `json:"token,omitempty"`
	SSESessionID string `json:"sseSessionId,omitempty"`
	Confirm      bool   `json:"confirm,omitempty"`
}

// MaxMessageLength bounds inbound chat messages.
const MaxMessageLength = 1000

// ChatResponse is the structured reply to a chat turn.
type ChatResponse struct {
	Response  string `json:"response"`
	Success   bool   `json:"success"`
	ModelUsed string `json:"model_used"`
	UserID    string `json:"user_id"`

	RequiresConfirmation  bool   `json:"requires_confirmation,omitempty"`
	ConfirmationSessionID string `json:"confirmation_session_id,omitempty"`

	RequiresSelection bool        `json:"requires_selection,omitempty"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	TaskID            string      `json:"task_id,omitempty"`

	CurrentStage      Stage        `json:"current_stage,omitempty"`
	UsedIngredients   []string     `json:"used_ingredients,omitempty"`
	MenuCategory      MenuCategory `json:"menu_category,omitempty"`
	RequiresNextStage bool         `json:"requires_next_stage,omitempty"`
}

// SelectionRequest is the inbound body posted when the user picks a candidate.
type SelectionRequest struct {
	TaskID         string `json:"task_id"`
	SelectionIndex int    `json:"selection_index"`
	SSESessionID   string `json:"sse_session_id"`
}

// SelectionResponse acknowledges a recorded selection.
type SelectionResponse struct {
	Success           bool         `json:"success"`
	Response          string       `json:"response"`
	CurrentStage      Stage        `json:"current_stage"`
	UsedIngredients   []string     `json:"used_ingredients,omitempty"`
	MenuCategory      MenuCategory `json:"menu_category,omitempty"`
	RequiresNextStage bool         `json:"requires_next_stage,omitempty"`
}

// SaveRequest persists the selected menu. Either the session id (server reads
// the selected recipes from the session) or explicit recipes per stage.
type SaveRequest struct {
	SSESessionID string            `json:"sse_session_id,omitempty"`
	Recipes      map[Stage]*Recipe `json:"recipes,omitempty"`
}

// SaveResponse lists the persisted history records.
type SaveResponse struct {
	Success  bool     `json:"success"`
	SavedIDs []string `json:"saved_ids"`
}
