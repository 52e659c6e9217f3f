// Package ingredients normalizes ingredient names and maps recipe
// ingredients onto a user's inventory. Pure functions, no I/O.
//
// Japanese inventories mix full-width and half-width characters, katakana
// and hiragana spellings, and decorative punctuation; normalization folds
// all of those so "ピーマン" and "ぴーまん" compare equal.
package ingredients

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/haasonsaas/kondate/pkg/models"
)

// strippedRunes is the punctuation removed during normalization: spaces,
// hyphen variants, parentheses variants, the middle dot, and comma/period
// variants.
var strippedRunes = map[rune]bool{
	' ': true, '\t': true,
	'　': true, // ideographic space
	'-': true, '‐': true, '–': true, '—': true, '−': true,
	'(': true, ')': true, '（': true, '）': true,
	'・': true, // middle dot
	',': true, '、': true, '，': true,
	'.': true, '。': true, '．': true,
}

// Normalize returns the comparison key for an ingredient name: width-folded,
// ASCII-lowercased, katakana converted to hiragana, punctuation stripped.
// Normalize is idempotent.
func Normalize(name string) string {
	folded := width.Fold.String(name)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if strippedRunes[r] || unicode.IsSpace(r) {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		// Katakana ァ..ヶ sits 0x60 above the matching hiragana block.
		if r >= 0x30A1 && r <= 0x30F6 {
			r -= 0x60
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MapRecipeToInventory maps each recipe ingredient onto the inventory entry
// it consumes. Exact normalized matches win; otherwise the first inventory
// entry whose normalized form contains, or is contained in, the recipe
// ingredient matches. Unmatched recipe ingredients are dropped. The result
// preserves insertion order and holds no duplicates.
func MapRecipeToInventory(recipeIngs, inventoryIngs []string) []string {
	type entry struct {
		raw  string
		norm string
	}
	inventory := make([]entry, 0, len(inventoryIngs))
	exact := make(map[string]string, len(inventoryIngs))
	for _, inv := range inventoryIngs {
		norm := Normalize(inv)
		if norm == "" {
			continue
		}
		inventory = append(inventory, entry{raw: inv, norm: norm})
		if _, ok := exact[norm]; !ok {
			exact[norm] = inv
		}
	}

	var out []string
	seen := make(map[string]bool)
	appendMatch := func(raw string) {
		if !seen[raw] {
			seen[raw] = true
			out = append(out, raw)
		}
	}

	for _, ing := range recipeIngs {
		norm := Normalize(ing)
		if norm == "" {
			continue
		}
		if raw, ok := exact[norm]; ok {
			appendMatch(raw)
			continue
		}
		for _, inv := range inventory {
			if strings.Contains(inv.norm, norm) || strings.Contains(norm, inv.norm) {
				appendMatch(inv.raw)
				break
			}
		}
	}
	return out
}

// UsedIngredientsUnion returns the ordered union of inventory items consumed
// by the selected recipes, walking stages in dialog order so earlier
// selections keep their position.
func UsedIngredientsUnion(selected map[models.Stage]*models.Recipe, inventoryIngs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, stage := range []models.Stage{models.StageMain, models.StageSub, models.StageSoup} {
		recipe := selected[stage]
		if recipe == nil {
			continue
		}
		for _, item := range MapRecipeToInventory(recipe.Ingredients, inventoryIngs) {
			if !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	return out
}

// Remaining returns the inventory items not yet consumed, preserving
// inventory order. The formatter reports these as still available.
func Remaining(inventoryIngs, used []string) []string {
	usedSet := make(map[string]bool, len(used))
	for _, u := range used {
		usedSet[Normalize(u)] = true
	}
	var out []string
	for _, item := range inventoryIngs {
		if !usedSet[Normalize(item)] {
			out = append(out, item)
		}
	}
	return out
}
