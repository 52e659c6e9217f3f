// Package stage drives the menu-selection state machine: main dish, then
// side dish, then soup. Selections are recorded on the session and the stage
// only ever advances.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/kondate/internal/history"
	"github.com/haasonsaas/kondate/internal/ingredients"
	"github.com/haasonsaas/kondate/pkg/models"
)

var (
	// ErrNoCandidates means no proposal is pending at the current stage.
	ErrNoCandidates = errors.New("no candidates pending at the current stage")

	// ErrIndexOutOfRange means the selection index does not name a candidate.
	ErrIndexOutOfRange = errors.New("selection index out of range")

	// ErrCompleted means the menu is already complete and cannot take
	// further selections.
	ErrCompleted = errors.New("menu selection already completed")

	// ErrTaskMismatch means the selection echoed a task id that does not
	// match the pending proposal.
	ErrTaskMismatch = errors.New("selection does not match the pending proposal")
)

// Japanese labels used when persisting a completed menu.
var stageLabels = map[models.Stage]string{
	models.StageMain: "主菜",
	models.StageSub:  "副菜",
	models.StageSoup: "汁物",
}

// Result describes the session after a recorded selection.
type Result struct {
	Selected        *models.Recipe
	Stage           models.Stage
	UsedIngredients []string
	MenuCategory    models.MenuCategory
	RequiresNext    bool
}

// Select records the candidate at index as the current stage's choice,
// recomputes the consumed-inventory union, and advances the stage. The first
// selection fixes the menu category from the main dish's cuisine.
func Select(session *models.Session, index int) (*Result, error) {
	if session.Stage == models.StageCompleted {
		return nil, ErrCompleted
	}
	candidates := session.Candidates[session.Stage]
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if index < 0 || index >= len(candidates) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(candidates))
	}

	chosen := candidates[index]
	recipe := chosen.ToRecipe()
	recipe.Category = session.Stage
	session.SelectedRecipes[session.Stage] = recipe

	if session.Stage == models.StageMain && chosen.Cuisine != "" {
		session.MenuCategory = chosen.Cuisine
	}

	session.UsedIngredients = ingredients.UsedIngredientsUnion(session.SelectedRecipes, session.InventoryItems())

	// A consumed proposal never replays: clear it and advance.
	delete(session.Candidates, session.Stage)
	session.Confirmation = nil
	session.Stage = session.Stage.Next()

	return &Result{
		Selected:        recipe,
		Stage:           session.Stage,
		UsedIngredients: session.UsedIngredients,
		MenuCategory:    session.MenuCategory,
		RequiresNext:    session.Stage != models.StageCompleted,
	}, nil
}

// RecordProposal stores offered candidates on the session so the following
// turn can resolve a selection, and remembers the titles so re-proposals
// exclude them. The task id is echoed back by the client when it answers.
func RecordProposal(session *models.Session, st models.Stage, taskID string, candidates []models.Candidate) {
	session.Candidates[st] = candidates
	titles := session.ProposedTitles[st]
	for _, c := range candidates {
		titles = append(titles, c.Title)
	}
	session.ProposedTitles[st] = titles
	session.Confirmation = &models.Confirmation{
		Kind:      models.ConfirmStageSelection,
		Selection: &models.StageSelection{TaskID: taskID, Stage: st},
		CreatedAt: time.Now(),
	}
}

// ValidateTaskID checks a selection's echoed task id against the pending
// proposal. An empty echo is accepted for clients that do not track task ids.
func ValidateTaskID(session *models.Session, taskID string) error {
	if taskID == "" {
		return nil
	}
	conf := session.Confirmation
	if conf == nil || conf.Kind != models.ConfirmStageSelection || conf.Selection == nil {
		return fmt.Errorf("%w: no proposal pending", ErrTaskMismatch)
	}
	if conf.Selection.TaskID != taskID {
		return fmt.Errorf("%w: got %q", ErrTaskMismatch, taskID)
	}
	return nil
}

// SaveMenu persists the selected recipes as history records with
// stage-labeled titles. Returns the ids saved.
func SaveMenu(ctx context.Context, store *history.Store, session *models.Session, recipes map[models.Stage]*models.Recipe) ([]string, error) {
	if recipes == nil {
		recipes = session.SelectedRecipes
	}
	var ids []string
	for _, st := range []models.Stage{models.StageMain, models.StageSub, models.StageSoup} {
		recipe := recipes[st]
		if recipe == nil {
			continue
		}
		rec := &history.Record{
			UserID:   session.UserID,
			Title:    fmt.Sprintf("【%s】%s", stageLabels[st], recipe.Title),
			Source:   string(recipe.Source),
			URL:      recipe.URL,
			Category: string(session.MenuCategory),
		}
		if err := store.Save(ctx, rec); err != nil {
			return ids, err
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
