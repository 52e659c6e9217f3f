package models

// Stage is a position in the menu-selection state machine.
type Stage string

const (
	StageMain      Stage = "main"
	StageSub       Stage = "sub"
	StageSoup      Stage = "soup"
	StageCompleted Stage = "completed"
)

// Next returns the stage that follows s. Completed is terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageMain:
		return StageSub
	case StageSub:
		return StageSoup
	case StageSoup:
		return StageCompleted
	}
	return StageCompleted
}

// MenuCategory is the cuisine of a planned menu.
type MenuCategory string

const (
	CategoryJapanese MenuCategory = "japanese"
	CategoryWestern  MenuCategory = "western"
	CategoryChinese  MenuCategory = "chinese"
)

// RecipeSource records which component produced a candidate.
type RecipeSource string

const (
	SourceLLM    RecipeSource = "llm"
	SourceRAG    RecipeSource = "rag"
	SourceWeb    RecipeSource = "web"
	SourceManual RecipeSource = "manual"
)

// Recipe is a selected or saved dish. Ingredients are the raw strings from
// the originating component; mapping onto inventory happens downstream.
type Recipe struct {
	Title       string       `json:"title"`
	Category    Stage        `json:"category"`
	Source      RecipeSource `json:"source"`
	URL         string       `json:"url,omitempty"`
	Ingredients []string     `json:"ingredients,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Cuisine     MenuCategory `json:"cuisine,omitempty"`
}

// Candidate is one recipe choice offered to the user during a proposal.
type Candidate struct {
	Title       string       `json:"title"`
	Category    Stage        `json:"category"`
	Source      RecipeSource `json:"source"`
	URL         string       `json:"url,omitempty"`
	Ingredients []string     `json:"ingredients,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Cuisine     MenuCategory `json:"cuisine,omitempty"`
}

// ToRecipe converts a chosen candidate into a recipe for the session record.
func (c Candidate) ToRecipe() *Recipe {
	return &Recipe{
		Title:       c.Title,
		Category:    c.Category,
		Source:      c.Source,
		URL:         c.URL,
		Ingredients: append([]string(nil), c.Ingredients...),
		ImageURL:    c.ImageURL,
		Cuisine:     c.Cuisine,
	}
}
