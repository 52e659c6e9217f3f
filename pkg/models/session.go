package models

import "time"

// ConfirmationKind tags the variant of a pending confirmation.
type ConfirmationKind string

const (
	// ConfirmAmbiguity: a tool reported multiple matching rows and the
	// graph is suspended until the user picks one.
	ConfirmAmbiguity ConfirmationKind = "ambiguity"
	// ConfirmStageSelection: the user was offered candidates and the next
	// message is expected to carry a selection.
	ConfirmStageSelection ConfirmationKind = "stage_selection"
)

// Ambiguity captures everything needed to resume a suspended graph once the
// user has answered the clarification question.
type Ambiguity struct {
	// TaskID is the task whose tool reported multiple matches.
	TaskID string `json:"task_id"`
	// Items are the candidate rows the user must choose between.
	Items []AmbiguousItem `json:"items"`
	// Graph is the planned task list in wire shape.
	Graph []*Task `json:"graph"`
	// Completed holds results of tasks that finished before suspension,
	// so resumption replays nothing.
	Completed map[string]*ToolResult `json:"completed"`
}

// StageSelection records the proposal awaiting the user's pick: which task
// offered the candidates and at which stage. The selection post echoes the
// task id.
type StageSelection struct {
	TaskID string `json:"task_id"`
	Stage  Stage  `json:"stage"`
}

// Confirmation is non-nil exactly when the session is awaiting a user reply.
// Exactly one of Ambiguity and Selection is set, matching Kind.
type Confirmation struct {
	Kind            ConfirmationKind `json:"kind"`
	OriginalRequest string           `json:"original_request"`
	Question        string           `json:"question"`
	Ambiguity       *Ambiguity       `json:"ambiguity,omitempty"`
	Selection       *StageSelection  `json:"selection,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Session is the per-conversation state: where the menu dialog stands, what
// was proposed and chosen, and what the next turn needs to know.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Stage        Stage        `json:"stage"`
	MenuCategory MenuCategory `json:"menu_category"`

	// SelectedRecipes maps stage -> chosen recipe, nullable per stage.
	SelectedRecipes map[Stage]*Recipe `json:"selected_recipes"`

	// UsedIngredients is the ordered union of inventory names consumed by
	// the selected recipes, normalized onto the cached inventory.
	UsedIngredients []string `json:"used_ingredients"`

	// ProposedTitles maps stage -> titles already offered, so follow-up
	// proposals exclude them.
	ProposedTitles map[Stage][]string `json:"proposed_titles"`

	// Candidates maps stage -> the last choices offered at that stage.
	Candidates map[Stage][]Candidate `json:"candidates"`

	// Context is the general key/value bag (inventory_items,
	// main_ingredient, menu_type at minimum).
	Context map[string]any `json:"context"`

	Confirmation *Confirmation `json:"confirmation,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewSession returns a session at the initial stage with default category.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:              id,
		UserID:          userID,
		Stage:           StageMain,
		MenuCategory:    CategoryJapanese,
		SelectedRecipes: make(map[Stage]*Recipe),
		ProposedTitles:  make(map[Stage][]string),
		Candidates:      make(map[Stage][]Candidate),
		Context:         make(map[string]any),
		CreatedAt:       now,
		LastAccessed:    now,
	}
}

// AwaitingConfirmation reports whether the next user message must be
// interpreted as a clarification reply to a suspended graph. A pending stage
// selection does not reroute chat messages; it resolves through the
// selection endpoint or the request's explicit confirm flag.
func (s *Session) AwaitingConfirmation() bool {
	return s.Confirmation != nil && s.Confirmation.Kind == ConfirmAmbiguity
}

// InventoryItems returns the cached inventory names from the context bag.
func (s *Session) InventoryItems() []string {
	return stringsFromContext(s.Context["inventory_items"])
}

// SetInventoryItems caches the inventory names for follow-up turns.
func (s *Session) SetInventoryItems(items []string) {
	s.Context["inventory_items"] = items
}

func stringsFromContext(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Clone returns a deep copy so stores never hand out shared mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.SelectedRecipes = make(map[Stage]*Recipe, len(s.SelectedRecipes))
	for stage, recipe := range s.SelectedRecipes {
		if recipe == nil {
			clone.SelectedRecipes[stage] = nil
			continue
		}
		r := *recipe
		r.Ingredients = append([]string(nil), recipe.Ingredients...)
		clone.SelectedRecipes[stage] = &r
	}
	clone.UsedIngredients = append([]string(nil), s.UsedIngredients...)
	clone.ProposedTitles = make(map[Stage][]string, len(s.ProposedTitles))
	for stage, titles := range s.ProposedTitles {
		clone.ProposedTitles[stage] = append([]string(nil), titles...)
	}
	clone.Candidates = make(map[Stage][]Candidate, len(s.Candidates))
	for stage, cands := range s.Candidates {
		copied := make([]Candidate, len(cands))
		copy(copied, cands)
		for i := range copied {
			copied[i].Ingredients = append([]string(nil), cands[i].Ingredients...)
		}
		clone.Candidates[stage] = copied
	}
	clone.Context = deepCloneMap(s.Context)
	if s.Confirmation != nil {
		c := *s.Confirmation
		if s.Confirmation.Ambiguity != nil {
			a := *s.Confirmation.Ambiguity
			a.Items = append([]AmbiguousItem(nil), s.Confirmation.Ambiguity.Items...)
			a.Graph = append([]*Task(nil), s.Confirmation.Ambiguity.Graph...)
			a.Completed = make(map[string]*ToolResult, len(s.Confirmation.Ambiguity.Completed))
			for id, res := range s.Confirmation.Ambiguity.Completed {
				a.Completed[id] = res
			}
			c.Ambiguity = &a
		}
		if s.Confirmation.Selection != nil {
			sel := *s.Confirmation.Selection
			c.Selection = &sel
		}
		clone.Confirmation = &c
	}
	return &clone
}

// deepCloneMap copies a map[string]any including nested maps and slices.
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		return v
	}
}
