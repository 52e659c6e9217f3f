// Package format renders executor results into user-facing chat responses:
// inventory summaries, menu plans, and candidate proposals with the
// selection metadata the client needs.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/ingredients"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Candidate caps per proposal: the planner's own suggestions come first,
// then retrieved ones fill the list.
const (
	LLMCandidateLimit = 2
	RAGCandidateLimit = 3
)

// InventoryResponse renders the outcome of an inventory operation.
func InventoryResponse(verb classify.InventoryVerb, results map[string]*models.ToolResult) string {
	switch verb {
	case classify.VerbList:
		items := inventoryItems(results)
		if len(items) == 0 {
			return "Your inventory is empty."
		}
		var sb strings.Builder
		sb.WriteString("Here is your inventory:\n")
		for _, item := range items {
			sb.WriteString("- " + item + "\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	case classify.VerbAdd:
		return "Added to your inventory."
	case classify.VerbUpdate:
		return "Updated your inventory."
	case classify.VerbDelete:
		return "Removed from your inventory."
	}
	return "Done."
}

// MenuPlanResponse renders a full menu plan result.
func MenuPlanResponse(results map[string]*models.ToolResult, session *models.Session) string {
	result := findByTool(results, tools.ToolGenerateMenuPlan)
	if result == nil {
		return "I could not put a menu plan together. Please try again."
	}
	data, _ := result.Data.(map[string]any)

	var sb strings.Builder
	sb.WriteString("Here is a menu plan from your ingredients:\n")
	for _, entry := range []struct {
		key, label string
	}{
		{"main_dish", "主菜"},
		{"side_dish", "副菜"},
		{"soup", "汁物"},
	} {
		if dish := dishLine(data[entry.key]); dish != "" {
			fmt.Fprintf(&sb, "%s: %s\n", entry.label, dish)
		}
	}
	if remaining := ingredients.Remaining(session.InventoryItems(), session.UsedIngredients); len(remaining) > 0 {
		sb.WriteString("Still available: " + strings.Join(remaining, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// MenuPlanCandidates collects the planned dishes and the retrieved menus as
// selectable candidates: one per course from the generated plan, then RAG
// matches capped at RAGCandidateLimit, deduplicated by normalized title and
// enriched with web search URLs.
func MenuPlanCandidates(results map[string]*models.ToolResult) []models.Candidate {
	var out []models.Candidate
	seen := make(map[string]bool)

	if result := findByTool(results, tools.ToolGenerateMenuPlan); result != nil {
		if data, ok := result.Data.(map[string]any); ok {
			for _, entry := range []struct {
				key   string
				stage models.Stage
			}{
				{"main_dish", models.StageMain},
				{"side_dish", models.StageSub},
				{"soup", models.StageSoup},
			} {
				c, ok := dishCandidate(data[entry.key])
				if !ok {
					continue
				}
				key := ingredients.Normalize(c.Title)
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				c.Category = entry.stage
				c.Source = models.SourceLLM
				out = append(out, c)
			}
		}
	}

	count := 0
	for _, c := range decodeCandidates(findByTool(results, tools.ToolSearchMenuFromRAG)) {
		key := ingredients.Normalize(c.Title)
		if key == "" || seen[key] || count >= RAGCandidateLimit {
			continue
		}
		seen[key] = true
		count++
		c.Source = models.SourceRAG
		out = append(out, c)
	}

	enrichURLs(out, findByTool(results, tools.ToolSearchRecipesFromWeb))
	return out
}

// ProposalCandidates collects the stage's candidates from the run results:
// planner proposals first capped at LLMCandidateLimit, retrieved menus
// capped at RAGCandidateLimit, deduplicated by normalized title, each
// enriched with the web search URL at the matching position.
func ProposalCandidates(stage models.Stage, results map[string]*models.ToolResult) []models.Candidate {
	var out []models.Candidate
	seen := make(map[string]bool)

	appendCapped := func(cands []models.Candidate, source models.RecipeSource, limit int) {
		count := 0
		for _, c := range cands {
			key := ingredients.Normalize(c.Title)
			if key == "" || seen[key] || count >= limit {
				continue
			}
			seen[key] = true
			count++
			c.Category = stage
			c.Source = source
			out = append(out, c)
		}
	}

	appendCapped(decodeCandidates(findByTool(results, proposalTool(stage))), models.SourceLLM, LLMCandidateLimit)
	appendCapped(decodeCandidates(findByTool(results, tools.ToolSearchMenuFromRAG)), models.SourceRAG, RAGCandidateLimit)

	enrichURLs(out, findByTool(results, tools.ToolSearchRecipesFromWeb))
	return out
}

// ProposalTaskID returns the id of the graph task that produced the stage's
// proposal, echoed back by the client on selection.
func ProposalTaskID(stage models.Stage, graph *models.TaskGraph, results map[string]*models.ToolResult) string {
	want := proposalTool(stage)
	for id := range results {
		if task, ok := graph.Get(id); ok && task.ToolName() == want {
			return id
		}
	}
	return ""
}

// ProposalResponse builds the selection reply offered to the user. The task
// id identifies which proposal the selection answers.
func ProposalResponse(stage models.Stage, taskID string, candidates []models.Candidate, session *models.Session) *models.ChatResponse {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are %s suggestions:\n", stageNoun(stage))
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s", i+1, c.Title)
		if len(c.Ingredients) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(c.Ingredients, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Reply with a number to choose.")

	return &models.ChatResponse{
		Response:          sb.String(),
		Success:           true,
		RequiresSelection: true,
		TaskID:            taskID,
		Candidates:        candidates,
		CurrentStage:      stage,
		UsedIngredients:   ingredients.Remaining(session.InventoryItems(), session.UsedIngredients),
		MenuCategory:      session.MenuCategory,
	}
}

// SelectionMessage acknowledges a recorded selection and names the next step.
func SelectionMessage(selected *models.Recipe, next models.Stage) string {
	if next == models.StageCompleted {
		return fmt.Sprintf("Recorded %q. Your menu is complete — you can save it now.", selected.Title)
	}
	return fmt.Sprintf("Recorded %q. Next let's pick a %s.", selected.Title, stageNoun(next))
}

// ConfirmationResponse wraps a clarification question in the reply shape.
func ConfirmationResponse(question, sessionID string) *models.ChatResponse {
	return &models.ChatResponse{
		Response:              question,
		Success:               true,
		RequiresConfirmation:  true,
		ConfirmationSessionID: sessionID,
	}
}

// GreetingResponse is the fixed reply for messages matching no pattern.
func GreetingResponse() string {
	return "Hello! Tell me what ingredients you have, or ask for a menu plan or a main dish suggestion."
}

func stageNoun(stage models.Stage) string {
	switch stage {
	case models.StageMain:
		return "main dish"
	case models.StageSub:
		return "side dish"
	case models.StageSoup:
		return "soup"
	}
	return "dish"
}

func proposalTool(stage models.Stage) string {
	switch stage {
	case models.StageSub:
		return tools.ToolProposeSideDish
	case models.StageSoup:
		return tools.ToolProposeSoup
	}
	return tools.ToolProposeMainDish
}

// findByTool returns the result of the task id whose graph entry called the
// tool. Results are keyed by task id; the caller supplies the id→tool map
// through graphTools before calling, or the default keying by tool name is
// used when results were re-keyed.
func findByTool(results map[string]*models.ToolResult, tool string) *models.ToolResult {
	if r, ok := results[tool]; ok {
		return r
	}
	return nil
}

// ReKeyByTool converts task-id-keyed results into tool-name-keyed results
// using the executed graph.
func ReKeyByTool(graph *models.TaskGraph, results map[string]*models.ToolResult) map[string]*models.ToolResult {
	out := make(map[string]*models.ToolResult, len(results))
	for id, res := range results {
		if task, ok := graph.Get(id); ok {
			out[task.ToolName()] = res
		}
	}
	return out
}

// decodeCandidates extracts data.candidates as typed candidates via a JSON
// round trip. Entries that fail to decode are dropped.
func decodeCandidates(result *models.ToolResult) []models.Candidate {
	if result == nil {
		return nil
	}
	data, ok := result.Data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := data["candidates"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var candidates []models.Candidate
	if err := json.Unmarshal(encoded, &candidates); err != nil {
		return nil
	}
	return candidates
}

// enrichURLs copies web-search URLs onto candidates by position: the search
// was issued with the candidate titles in order, so result K belongs to
// candidate K.
func enrichURLs(candidates []models.Candidate, webResult *models.ToolResult) {
	if webResult == nil {
		return
	}
	data, ok := webResult.Data.(map[string]any)
	if !ok {
		return
	}
	results, ok := data["results"].([]any)
	if !ok {
		return
	}
	for i := range candidates {
		if i >= len(results) {
			break
		}
		if candidates[i].URL != "" {
			continue
		}
		entry, ok := results[i].(map[string]any)
		if !ok {
			continue
		}
		if url, ok := entry["url"].(string); ok {
			candidates[i].URL = url
		}
		if img, ok := entry["image_url"].(string); ok && candidates[i].ImageURL == "" {
			candidates[i].ImageURL = img
		}
	}
}

// inventoryItems pulls item names out of a get_inventory result.
func inventoryItems(results map[string]*models.ToolResult) []string {
	result := findByTool(results, tools.ToolGetInventory)
	if result == nil {
		return nil
	}
	data, ok := result.Data.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := data["items"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			name, _ := v["item_name"].(string)
			if name == "" {
				name, _ = v["name"].(string)
			}
			if name == "" {
				continue
			}
			if qty, ok := v["quantity"].(float64); ok && qty > 0 {
				unit, _ := v["unit"].(string)
				out = append(out, fmt.Sprintf("%s (%g %s)", name, qty, unit))
			} else {
				out = append(out, name)
			}
		}
	}
	return out
}

// InventoryNames extracts the bare item names from a get_inventory result,
// for caching on the session.
func InventoryNames(results map[string]*models.ToolResult) []string {
	result := findByTool(results, tools.ToolGetInventory)
	if result == nil {
		return nil
	}
	data, ok := result.Data.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := data["items"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if name, _ := v["item_name"].(string); name != "" {
				out = append(out, name)
			} else if name, _ := v["name"].(string); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// dishCandidate converts one planned course into a selectable candidate.
func dishCandidate(v any) (models.Candidate, bool) {
	switch dish := v.(type) {
	case string:
		if dish == "" {
			return models.Candidate{}, false
		}
		return models.Candidate{Title: dish}, true
	case map[string]any:
		title, _ := dish["title"].(string)
		if title == "" {
			return models.Candidate{}, false
		}
		c := models.Candidate{Title: title}
		if ings, ok := dish["ingredients"].([]any); ok {
			for _, ing := range ings {
				if s, ok := ing.(string); ok {
					c.Ingredients = append(c.Ingredients, s)
				}
			}
		}
		return c, true
	}
	return models.Candidate{}, false
}

func dishLine(v any) string {
	switch dish := v.(type) {
	case string:
		return dish
	case map[string]any:
		title, _ := dish["title"].(string)
		if title == "" {
			return ""
		}
		if ings, ok := dish["ingredients"].([]any); ok && len(ings) > 0 {
			parts := make([]string, 0, len(ings))
			for _, ing := range ings {
				if s, ok := ing.(string); ok {
					parts = append(parts, s)
				}
			}
			return fmt.Sprintf("%s (%s)", title, strings.Join(parts, ", "))
		}
		return title
	}
	return ""
}
