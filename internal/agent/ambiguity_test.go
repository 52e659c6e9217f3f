package agent

import (
	"strings"
	"testing"

	"github.com/haasonsaas/kondate/pkg/models"
)

func ambiguousItems() []models.AmbiguousItem {
	return []models.AmbiguousItem{
		{ID: "inv-1", Name: "トマト", Quantity: 3, Unit: "個", CreatedAt: "2026-08-01"},
		{ID: "inv-2", Name: "トマト", Quantity: 5, Unit: "個", CreatedAt: "2026-08-20"},
	}
}

func suspendedGraph(t *testing.T) *models.TaskGraph {
	t.Helper()
	graph, err := models.NewTaskGraph([]*models.Task{
		{ID: "task1", Service: "inventory_service", Method: "get_inventory", Parameters: map[string]any{}, Dependencies: []string{}},
		{ID: "task2", Service: "inventory_service", Method: "delete_inventory",
			Parameters:   map[string]any{"item_identifier": "トマト"},
			Dependencies: []string{"task1"}},
	})
	if err != nil {
		t.Fatalf("NewTaskGraph() error = %v", err)
	}
	return graph
}

func TestDetectBuildsConfirmation(t *testing.T) {
	d := NewDetector()
	graph := suspendedGraph(t)
	task, _ := graph.Get("task2")
	completed := map[string]*models.ToolResult{
		"task1": {Success: true, Data: map[string]any{"items": []any{"トマト"}}},
	}
	result := &models.ToolResult{Success: false, Error: models.AmbiguityError, Items: ambiguousItems()}

	conf := d.Detect(task, result, graph, completed, "トマトを削除して")
	if conf == nil {
		t.Fatal("expected confirmation for ambiguous result")
	}
	if conf.Kind != models.ConfirmAmbiguity {
		t.Fatalf("kind = %s", conf.Kind)
	}
	if conf.Ambiguity.TaskID != "task2" {
		t.Fatalf("task id = %s", conf.Ambiguity.TaskID)
	}
	if len(conf.Ambiguity.Graph) != 2 || len(conf.Ambiguity.Completed) != 1 {
		t.Fatalf("snapshot incomplete: %d tasks, %d completed", len(conf.Ambiguity.Graph), len(conf.Ambiguity.Completed))
	}
	if !strings.Contains(conf.Question, "2") {
		t.Fatalf("question should list both items: %q", conf.Question)
	}

	// A successful result needs no confirmation.
	if d.Detect(task, &models.ToolResult{Success: true}, graph, completed, "x") != nil {
		t.Fatal("success must not suspend")
	}
}

func TestParseReply(t *testing.T) {
	items := ambiguousItems()
	tests := []struct {
		reply string
		want  Choice
	}{
		{"全部消して", Choice{Strategy: StrategyAll}},
		{"all of them", Choice{Strategy: StrategyAll}},
		{"古いほう", Choice{Strategy: StrategyOldest}},
		{"新しい方", Choice{Strategy: StrategyLatest}},
		{"1", Choice{Strategy: StrategyByID, ItemID: "inv-1"}},
		{"2番", Choice{Strategy: StrategyByID, ItemID: "inv-2"}},
		{"inv-2", Choice{Strategy: StrategyByID, ItemID: "inv-2"}},
		{"やっぱりやめる", Choice{Rejected: true}},
		{"9", Choice{Rejected: true}},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got := ParseReply(tt.reply, items)
			if got != tt.want {
				t.Fatalf("ParseReply(%q) = %+v, want %+v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestResumeGraphSubstitutesStrategy(t *testing.T) {
	graph := suspendedGraph(t)
	completed := map[string]*models.ToolResult{
		"task1": {Success: true, Data: map[string]any{"items": []any{"トマト"}}},
		"task2": {Success: false, Error: models.AmbiguityError, Items: ambiguousItems()},
	}
	amb := &models.Ambiguity{
		TaskID:    "task2",
		Items:     ambiguousItems(),
		Graph:     graph.Tasks,
		Completed: completed,
	}

	resumed, replayed, err := ResumeGraph(amb, Choice{Strategy: StrategyOldest})
	if err != nil {
		t.Fatalf("ResumeGraph() error = %v", err)
	}

	// task1 replays; the ambiguous task re-runs with the strategy attached.
	if len(replayed) != 1 {
		t.Fatalf("replayed = %d results, want 1", len(replayed))
	}
	t1, _ := resumed.Get("task1")
	if t1.State != models.TaskSucceeded {
		t.Fatalf("task1 state = %s, want succeeded", t1.State)
	}
	t2, _ := resumed.Get("task2")
	if t2.State != models.TaskPending {
		t.Fatalf("task2 state = %s, want pending", t2.State)
	}
	if t2.Parameters["strategy"] != StrategyOldest {
		t.Fatalf("strategy = %v", t2.Parameters["strategy"])
	}
	if t2.Parameters["item_identifier"] != "トマト" {
		t.Fatal("original parameters must survive resumption")
	}

	ready := resumed.Ready()
	if len(ready) != 1 || ready[0].ID != "task2" {
		t.Fatalf("ready after resume = %v", ready)
	}
}

func TestResumeGraphByID(t *testing.T) {
	graph := suspendedGraph(t)
	amb := &models.Ambiguity{
		TaskID:    "task2",
		Items:     ambiguousItems(),
		Graph:     graph.Tasks,
		Completed: map[string]*models.ToolResult{"task1": {Success: true}},
	}

	resumed, _, err := ResumeGraph(amb, Choice{Strategy: StrategyByID, ItemID: "inv-2"})
	if err != nil {
		t.Fatalf("ResumeGraph() error = %v", err)
	}
	t2, _ := resumed.Get("task2")
	if t2.Parameters["item_id"] != "inv-2" {
		t.Fatalf("item_id = %v", t2.Parameters["item_id"])
	}
}

func TestResumeGraphRejected(t *testing.T) {
	if _, _, err := ResumeGraph(&models.Ambiguity{}, Choice{Rejected: true}); err == nil {
		t.Fatal("expected error for rejected choice")
	}
}
