// Package prompts builds the pattern-specific planning prompts. Each pattern
// maps to a builder function at compile time; builders are pure and
// deterministic given their inputs.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/tools"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Params carries every input a builder may use. Builders never read
// external state.
type Params struct {
	Message         string
	SessionID       string
	UserID          string
	MainIngredient  string
	MenuCategory    models.MenuCategory
	UsedIngredients []string
	ExcludedTitles  []string
	InventoryVerb   classify.InventoryVerb
	Strategy        string
}

// System is the planner's system prompt, shared by every pattern.
const System = "You are the planning component of a meal-planning assistant. " +
	"You translate one user request into a JSON task graph over the declared tools. " +
	"You never answer the user directly and never emit anything but the JSON document."

// builderFn produces the planning prompt for one pattern.
type builderFn func(b *Builder, p Params) string

// Builder renders prompts against the live tool catalog.
type Builder struct {
	registry *tools.Registry
	builders map[classify.Pattern]builderFn
}

// New creates a prompt builder over the given registry.
func New(registry *tools.Registry) *Builder {
	b := &Builder{registry: registry}
	b.builders = map[classify.Pattern]builderFn{
		classify.PatternInventoryOp:    (*Builder).inventoryOp,
		classify.PatternMenuPlan:       (*Builder).menuPlan,
		classify.PatternMainProposal:   (*Builder).mainProposal,
		classify.PatternSubProposal:    (*Builder).subProposal,
		classify.PatternSoupProposal:   (*Builder).soupProposal,
		classify.PatternMainAdditional: (*Builder).mainAdditional,
		classify.PatternSubAdditional:  (*Builder).subAdditional,
		classify.PatternSoupAdditional: (*Builder).soupAdditional,
		classify.PatternGreeting:       (*Builder).greeting,
	}
	return b
}

// Build returns the planning prompt for the classified pattern.
func (b *Builder) Build(pattern classify.Pattern, p Params) string {
	fn, ok := b.builders[pattern]
	if !ok {
		fn = (*Builder).greeting
	}
	return fn(b, p)
}

// base declares the tool catalog for the listed server groups, the parameter
// contracts, and the strict output shape.
func (b *Builder) base(servers ...string) string {
	var sb strings.Builder
	sb.WriteString("You are a meal-planning task planner. ")
	sb.WriteString("Decompose the user request into a JSON task graph.\n\n")
	sb.WriteString("Available tools:\n")

	var names []string
	for _, server := range servers {
		names = append(names, b.registry.Names(server)...)
	}
	sort.Strings(names)
	for _, name := range names {
		d, ok := b.registry.Get(name)
		if !ok {
			continue
		}
		sb.WriteString("- " + name + "(")
		var params []string
		for pname, spec := range d.Params {
			tag := pname + ": " + spec.Type
			if spec.Required {
				tag += ", required"
			}
			params = append(params, tag)
		}
		sort.Strings(params)
		sb.WriteString(strings.Join(params, "; "))
		sb.WriteString(")\n")
	}

	sb.WriteString(`
Output exactly one JSON document of shape {"tasks": [...]}.
Each task: {"id": "taskN", "description": "...", "service": "...",
"method": "...", "parameters": {...}, "dependencies": ["taskK", ...]}.
Parameter values may reference earlier results as "taskK.result",
"taskK.result.path.to.field", "session.context.KEY", or
"taskA.result.data + taskB.result.data" to concatenate two lists.
A task may only reference tasks listed in its dependencies.
No prose, no markdown fences, JSON only.
`)
	return sb.String()
}

func (b *Builder) footer(p Params) string {
	var sb strings.Builder
	sb.WriteString("\nUser request: " + p.Message + "\n")
	if p.SessionID != "" {
		sb.WriteString("Session id: " + p.SessionID + "\n")
	}
	sb.WriteString("User id: " + p.UserID + "\n")
	return sb.String()
}

func (b *Builder) inventoryOp(p Params) string {
	var sb strings.Builder
	sb.WriteString(b.base(tools.ServerInventory))
	sb.WriteString("\nExpected chain: a single inventory task.\n")
	switch p.InventoryVerb {
	case classify.VerbAdd:
		sb.WriteString("Use inventory_service.add_inventory with item_name, quantity and unit parsed from the request.\n")
	case classify.VerbUpdate:
		sb.WriteString("Use inventory_service.update_inventory with item_identifier, an updates object, and strategy \"" + orDefault(p.Strategy, classify.StrategyByName) + "\".\n")
		sb.WriteString("Never plan a delete plus an add for a change request; it is a single update.\n")
	case classify.VerbDelete:
		sb.WriteString("Use inventory_service.delete_inventory with item_identifier and strategy \"" + orDefault(p.Strategy, classify.StrategyByName) + "\".\n")
	default:
		sb.WriteString("Use inventory_service.get_inventory with the user_id.\n")
	}
	sb.WriteString(b.footer(p))
	return sb.String()
}

func (b *Builder) menuPlan(p Params) string {
	var sb strings.Builder
	sb.WriteString(b.base(tools.ServerInventory, tools.ServerRecipe, tools.ServerRAG, tools.ServerWeb))
	sb.WriteString(`
Expected chain (4 tasks):
  task1 inventory_service.get_inventory (no dependencies)
  task2 recipe_service.generate_menu_plan, ingredients = "task1.result.data", depends on task1
  task3 rag_service.search_menu_from_rag, ingredients = "task1.result.data", depends on task1
  task4 web_service.search_recipes_from_web, recipe_titles =
        "task2.result.data.candidates + task3.result.data.candidates", depends on task2 and task3
`)
	if p.MenuCategory != "" {
		sb.WriteString(fmt.Sprintf("Set menu_type to %q on task2 and task3.\n", p.MenuCategory))
	}
	sb.WriteString(b.footer(p))
	return sb.String()
}

func (b *Builder) proposal(p Params, method string, additional bool) string {
	var sb strings.Builder
	sb.WriteString(b.base(tools.ServerInventory, tools.ServerRecipe, tools.ServerWeb))
	sb.WriteString(fmt.Sprintf(`
Expected chain (3 tasks):
  task1 inventory_service.get_inventory (no dependencies)
  task2 recipe_service.%s, ingredients = "task1.result.data", depends on task1
  task3 web_service.search_recipes_from_web, recipe_titles = "task2.result.data.candidates", depends on task2
`, method))
	if p.MainIngredient != "" {
		sb.WriteString(fmt.Sprintf("Set main_ingredient to %q on task2.\n", p.MainIngredient))
	}
	if len(p.UsedIngredients) > 0 {
		sb.WriteString(fmt.Sprintf("Set used_ingredients to %s on task2; those items are already spoken for.\n",
			quoteList(p.UsedIngredients)))
	}
	if additional || len(p.ExcludedTitles) > 0 {
		sb.WriteString(fmt.Sprintf("Set excluded_titles to %s on task2 so previously offered dishes are not repeated.\n",
			quoteList(p.ExcludedTitles)))
	}
	if p.MenuCategory != "" {
		sb.WriteString(fmt.Sprintf("Set menu_type to %q on task2.\n", p.MenuCategory))
	}
	sb.WriteString(b.footer(p))
	return sb.String()
}

func (b *Builder) mainProposal(p Params) string { return b.proposal(p, "propose_main_dish", false) }
func (b *Builder) subProposal(p Params) string  { return b.proposal(p, "propose_side_dish", false) }
func (b *Builder) soupProposal(p Params) string { return b.proposal(p, "propose_soup", false) }

func (b *Builder) mainAdditional(p Params) string { return b.proposal(p, "propose_main_dish", true) }
func (b *Builder) subAdditional(p Params) string  { return b.proposal(p, "propose_side_dish", true) }
func (b *Builder) soupAdditional(p Params) string { return b.proposal(p, "propose_soup", true) }

// greeting needs no planning; the model must emit an empty task list.
func (b *Builder) greeting(p Params) string {
	return `Reply with exactly {"tasks": []}.` + b.footer(p)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
