package format

import (
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

func candidateData(titles ...string) map[string]any {
	entries := make([]any, 0, len(titles))
	for _, title := range titles {
		entries = append(entries, map[string]any{
			"title":       title,
			"ingredients": []any{"鶏もも肉"},
		})
	}
	return map[string]any{"candidates": entries}
}

func TestProposalCandidatesCapsAndDedups(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolProposeMainDish: {Success: true, Data: candidateData("唐揚げ", "生姜焼き", "チキン南蛮")},
		tools.ToolSearchMenuFromRAG: {Success: true, Data: candidateData(
			"ｶﾗｱｹﾞ", "唐揚げ", "肉じゃが", "親子丼", "カレー")},
	}

	out := ProposalCandidates(models.StageMain, results)
	if len(out) != 5 {
		t.Fatalf("candidates = %d, want 2 planner + 3 retrieved", len(out))
	}
	if out[0].Source != models.SourceLLM || out[2].Source != models.SourceRAG {
		t.Fatalf("source order wrong: %+v", out)
	}
	for _, c := range out {
		if c.Category != models.StageMain {
			t.Fatalf("category = %s", c.Category)
		}
		// The planner's 唐揚げ blocks the retrieved duplicate.
		if c.Source == models.SourceRAG && c.Title == "唐揚げ" {
			t.Fatal("duplicate title survived dedup")
		}
	}
}

func TestProposalCandidatesEnrichesURLsByPosition(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolProposeMainDish: {Success: true, Data: candidateData("唐揚げ", "生姜焼き")},
		tools.ToolSearchRecipesFromWeb: {Success: true, Data: map[string]any{
			"results": []any{
				map[string]any{"url": "https://example.com/karaage", "image_url": "https://example.com/k.jpg"},
				map[string]any{"url": "https://example.com/shogayaki"},
			},
		}},
	}

	out := ProposalCandidates(models.StageMain, results)
	if len(out) != 2 {
		t.Fatalf("candidates = %d", len(out))
	}
	if out[0].URL != "https://example.com/karaage" || out[0].ImageURL != "https://example.com/k.jpg" {
		t.Fatalf("first candidate enrichment = %+v", out[0])
	}
	if out[1].URL != "https://example.com/shogayaki" {
		t.Fatalf("second candidate enrichment = %+v", out[1])
	}
}

func TestProposalCandidatesStageTool(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolProposeSoup:     {Success: true, Data: candidateData("味噌汁")},
		tools.ToolProposeMainDish: {Success: true, Data: candidateData("唐揚げ")},
	}

	out := ProposalCandidates(models.StageSoup, results)
	if len(out) != 1 || out[0].Title != "味噌汁" {
		t.Fatalf("soup stage must read the soup tool, got %+v", out)
	}
}

func TestMenuPlanCandidates(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolGenerateMenuPlan: {Success: true, Data: map[string]any{
			"main_dish": map[string]any{"title": "唐揚げ", "ingredients": []any{"鶏もも肉"}},
			"side_dish": "冷奴",
			"soup":      map[string]any{"title": "味噌汁"},
		}},
		tools.ToolSearchMenuFromRAG: {Success: true, Data: candidateData("唐揚げ", "肉じゃが")},
		tools.ToolSearchRecipesFromWeb: {Success: true, Data: map[string]any{
			"results": []any{
				map[string]any{"url": "https://example.com/karaage"},
			},
		}},
	}

	out := MenuPlanCandidates(results)
	if len(out) != 4 {
		t.Fatalf("candidates = %d, want 3 planned + 1 retrieved", len(out))
	}
	if out[0].Title != "唐揚げ" || out[0].Category != models.StageMain || out[0].Source != models.SourceLLM {
		t.Fatalf("main candidate = %+v", out[0])
	}
	if out[1].Category != models.StageSub || out[2].Category != models.StageSoup {
		t.Fatalf("course categories = %+v", out[:3])
	}
	// The planned 唐揚げ blocks the retrieved duplicate.
	if out[3].Title != "肉じゃが" || out[3].Source != models.SourceRAG {
		t.Fatalf("retrieved candidate = %+v", out[3])
	}
	if out[0].URL != "https://example.com/karaage" {
		t.Fatalf("url enrichment = %+v", out[0])
	}
}

func TestProposalTaskID(t *testing.T) {
	graph, err := models.NewTaskGraph([]*models.Task{
		{ID: "task1", Description: "d", Service: "inventory_service", Method: "get_inventory",
			Parameters: map[string]any{"user_id": "u1"}, Dependencies: []string{}},
		{ID: "task2", Description: "d", Service: "recipe_service", Method: "propose_main_dish",
			Parameters: map[string]any{}, Dependencies: []string{"task1"}},
	})
	if err != nil {
		t.Fatalf("NewTaskGraph() error = %v", err)
	}
	results := map[string]*models.ToolResult{
		"task1": {Success: true},
		"task2": {Success: true, Data: candidateData("唐揚げ")},
	}

	if got := ProposalTaskID(models.StageMain, graph, results); got != "task2" {
		t.Fatalf("task id = %q, want task2", got)
	}
	if got := ProposalTaskID(models.StageSoup, graph, results); got != "" {
		t.Fatalf("soup task id = %q, want empty", got)
	}
}

func TestReKeyByTool(t *testing.T) {
	graph, err := models.NewTaskGraph([]*models.Task{
		{ID: "task1", Description: "d", Service: "inventory_service", Method: "get_inventory",
			Parameters: map[string]any{"user_id": "u1"}, Dependencies: []string{}},
	})
	if err != nil {
		t.Fatalf("NewTaskGraph() error = %v", err)
	}

	results := map[string]*models.ToolResult{
		"task1": {Success: true, Data: map[string]any{"items": []any{"トマト"}}},
	}

	keyed := ReKeyByTool(graph, results)
	if keyed[tools.ToolGetInventory] == nil {
		t.Fatalf("rekeyed = %v", keyed)
	}
}

func TestInventoryResponseList(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolGetInventory: {Success: true, Data: map[string]any{
			"items": []any{
				map[string]any{"item_name": "トマト", "quantity": 3.0, "unit": "個"},
				map[string]any{"name": "豆腐"},
				"もやし",
			},
		}},
	}

	got := InventoryResponse(classify.VerbList, results)
	for _, want := range []string{"トマト (3 個)", "豆腐", "もやし"} {
		if !strings.Contains(got, want) {
			t.Fatalf("response %q missing %q", got, want)
		}
	}

	empty := InventoryResponse(classify.VerbList, nil)
	if !strings.Contains(empty, "empty") {
		t.Fatalf("empty inventory response = %q", empty)
	}
}

func TestInventoryNames(t *testing.T) {
	results := map[string]*models.ToolResult{
		tools.ToolGetInventory: {Success: true, Data: map[string]any{
			"items": []any{map[string]any{"item_name": "トマト", "quantity": 3.0}, "豆腐"},
		}},
	}

	names := InventoryNames(results)
	if len(names) != 2 || names[0] != "トマト" || names[1] != "豆腐" {
		t.Fatalf("names = %v", names)
	}
}

func TestMenuPlanResponse(t *testing.T) {
	session := models.NewSession("s1", "u1", time.Now())
	session.SetInventoryItems([]string{"鶏もも肉", "豆腐", "ねぎ"})
	session.UsedIngredients = []string{"鶏もも肉", "豆腐"}

	results := map[string]*models.ToolResult{
		tools.ToolGenerateMenuPlan: {Success: true, Data: map[string]any{
			"main_dish": map[string]any{"title": "唐揚げ", "ingredients": []any{"鶏もも肉"}},
			"side_dish": "冷奴",
			"soup":      map[string]any{"title": "味噌汁"},
		}},
	}

	got := MenuPlanResponse(results, session)
	for _, want := range []string{"主菜: 唐揚げ (鶏もも肉)", "副菜: 冷奴", "汁物: 味噌汁", "Still available: ねぎ"} {
		if !strings.Contains(got, want) {
			t.Fatalf("response %q missing %q", got, want)
		}
	}
}

func TestProposalResponseShape(t *testing.T) {
	session := models.NewSession("s1", "u1", time.Now())
	candidates := []models.Candidate{
		{Title: "唐揚げ", Ingredients: []string{"鶏もも肉"}},
		{Title: "生姜焼き"},
	}

	resp := ProposalResponse(models.StageMain, "task2", candidates, session)
	if !resp.RequiresSelection || resp.CurrentStage != models.StageMain {
		t.Fatalf("response = %+v", resp)
	}
	if resp.TaskID != "task2" {
		t.Fatalf("task id = %q, want task2", resp.TaskID)
	}
	if !strings.Contains(resp.Response, "1. 唐揚げ (鶏もも肉)") || !strings.Contains(resp.Response, "2. 生姜焼き") {
		t.Fatalf("response text = %q", resp.Response)
	}
}

func TestSelectionMessage(t *testing.T) {
	recipe := &models.Recipe{Title: "唐揚げ"}
	if got := SelectionMessage(recipe, models.StageSub); !strings.Contains(got, "side dish") {
		t.Fatalf("mid-menu message = %q", got)
	}
	if got := SelectionMessage(recipe, models.StageCompleted); !strings.Contains(got, "complete") {
		t.Fatalf("final message = %q", got)
	}
}
