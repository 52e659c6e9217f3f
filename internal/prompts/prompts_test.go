package prompts

import (
	"strings"
	"testing"

	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

func testBuilder() *Builder {
	return New(tools.NewRegistry(nil, tools.Catalog()))
}

func TestBuildIsDeterministic(t *testing.T) {
	b := testBuilder()
	p := Params{Message: "献立を考えて", UserID: "u1", SessionID: "s1"}

	first := b.Build(classify.PatternMenuPlan, p)
	for i := 0; i < 5; i++ {
		if b.Build(classify.PatternMenuPlan, p) != first {
			t.Fatal("identical inputs must produce identical prompts")
		}
	}
}

func TestMenuPlanPromptDescribesChain(t *testing.T) {
	b := testBuilder()

	got := b.Build(classify.PatternMenuPlan, Params{Message: "献立を考えて", UserID: "u1"})
	for _, want := range []string{
		tools.ToolGetInventory,
		tools.ToolGenerateMenuPlan,
		tools.ToolSearchMenuFromRAG,
		tools.ToolSearchRecipesFromWeb,
		`"task2.result.data.candidates + task3.result.data.candidates"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("menu plan prompt missing %q", want)
		}
	}
}

func TestProposalPromptCarriesSessionState(t *testing.T) {
	b := testBuilder()

	got := b.Build(classify.PatternSubProposal, Params{
		Message:         "副菜も",
		UserID:          "u1",
		MainIngredient:  "鶏肉",
		MenuCategory:    models.CategoryJapanese,
		UsedIngredients: []string{"鶏もも肉", "ピーマン"},
		ExcludedTitles:  []string{"唐揚げ"},
	})
	for _, want := range []string{
		"propose_side_dish",
		`"鶏肉"`,
		`["鶏もも肉", "ピーマン"]`,
		`["唐揚げ"]`,
		`"japanese"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("proposal prompt missing %q in:\n%s", want, got)
		}
	}
}

func TestAdditionalProposalAlwaysExcludes(t *testing.T) {
	b := testBuilder()

	got := b.Build(classify.PatternMainAdditional, Params{Message: "他には？", UserID: "u1"})
	if !strings.Contains(got, "excluded_titles") {
		t.Fatal("additional proposals must instruct exclusion even with no titles yet")
	}
}

func TestInventoryPromptPerVerb(t *testing.T) {
	b := testBuilder()

	tests := []struct {
		verb classify.InventoryVerb
		want string
	}{
		{classify.VerbAdd, "add_inventory"},
		{classify.VerbUpdate, "update_inventory"},
		{classify.VerbDelete, "delete_inventory"},
		{classify.VerbList, "get_inventory"},
	}
	for _, tt := range tests {
		got := b.Build(classify.PatternInventoryOp, Params{
			Message: "m", UserID: "u1", InventoryVerb: tt.verb,
		})
		if !strings.Contains(got, tt.want) {
			t.Fatalf("verb %s prompt missing %q", tt.verb, tt.want)
		}
	}

	update := b.Build(classify.PatternInventoryOp, Params{
		Message: "m", UserID: "u1", InventoryVerb: classify.VerbUpdate,
	})
	if !strings.Contains(update, "single update") {
		t.Fatal("update prompt must forbid delete-then-add plans")
	}
}

func TestUnknownPatternFallsBackToGreeting(t *testing.T) {
	b := testBuilder()

	got := b.Build(classify.Pattern("mystery"), Params{Message: "hi", UserID: "u1"})
	if !strings.Contains(got, `{"tasks": []}`) {
		t.Fatalf("fallback prompt = %q", got)
	}
}
