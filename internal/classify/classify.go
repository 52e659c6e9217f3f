// Package classify routes a user message to one of the request patterns the
// planner knows how to build a task chain for. Classification is keyword and
// rule driven, evaluated in a fixed precedence order, so the same message
// and session state always yield the same pattern.
package classify

import (
	"strings"

	"github.com/haasonsaas/kondate/pkg/models"
)

// Pattern is one of the request classes.
type Pattern string

const (
	PatternInventoryOp       Pattern = "inventory_op"
	PatternMenuPlan          Pattern = "menu_plan"
	PatternMainProposal      Pattern = "main_proposal"
	PatternSubProposal       Pattern = "sub_proposal"
	PatternSoupProposal      Pattern = "soup_proposal"
	PatternMainAdditional    Pattern = "main_additional"
	PatternSubAdditional     Pattern = "sub_additional"
	PatternSoupAdditional    Pattern = "soup_additional"
	PatternConfirmationReply Pattern = "confirmation_reply"
	PatternGreeting          Pattern = "greeting_or_unknown"
)

// InventoryVerb is the operation an inventory_op message asks for.
type InventoryVerb string

const (
	VerbAdd    InventoryVerb = "add"
	VerbUpdate InventoryVerb = "update"
	VerbDelete InventoryVerb = "delete"
	VerbList   InventoryVerb = "list"
)

// Strategy hints extracted from qualifier words in inventory operations.
const (
	StrategyByName       = "by_name"
	StrategyByNameAll    = "by_name_all"
	StrategyByNameOldest = "by_name_oldest"
	StrategyByNameLatest = "by_name_latest"
)

// Result carries the classified pattern plus the parameters extracted from
// the message.
type Result struct {
	Pattern        Pattern
	InventoryVerb  InventoryVerb
	Strategy       string
	MainIngredient string
	MenuCategory   models.MenuCategory
}

// Config holds the trigger-token tables. The additional-proposal markers are
// language specific and deployments may override them.
type Config struct {
	AdditionalMarkers []string
}

// DefaultConfig returns the built-in trigger tables covering Japanese and
// English phrasing.
func DefaultConfig() Config {
	return Config{
		AdditionalMarkers: []string{
			"他の", "ほかの", "別の", "もっと", "もう一", "違う",
			"more", "other", "another", "additional", "else",
		},
	}
}

// Classifier routes messages. Stateless; safe for concurrent use.
type Classifier struct {
	cfg Config
}

// New creates a classifier. Empty marker lists fall back to the defaults.
func New(cfg Config) *Classifier {
	if len(cfg.AdditionalMarkers) == 0 {
		cfg.AdditionalMarkers = DefaultConfig().AdditionalMarkers
	}
	return &Classifier{cfg: cfg}
}

var (
	mainMarkers = []string{"主菜", "メイン", "main dish", "main course", "main"}
	subMarkers  = []string{"副菜", "サイド", "付け合わせ", "side dish", "side"}
	soupMarkers = []string{"汁物", "スープ", "味噌汁", "みそ汁", "soup"}

	menuMarkers = []string{
		"献立", "メニュー", "今日の夕飯", "何が作れる", "何作れる",
		"menu", "recipes", "what can i make", "meal plan",
	}

	// Update markers come before add/delete: "change X to Y" is a single
	// update, never a delete plus an add.
	updateMarkers = []string{"変更", "変えて", "にして", "更新", "change", "update", "set "}
	addMarkers    = []string{"追加", "増やして", "買った", "add", "bought"}
	deleteMarkers = []string{"削除", "消して", "捨てた", "使い切った", "delete", "remove", "used up"}
	listMarkers   = []string{"在庫", "一覧", "何がある", "リスト", "list", "inventory", "show", "what do i have"}

	allMarkers    = []string{"全部", "すべて", "全て", "まとめて", "all"}
	oldestMarkers = []string{"古い", "一番古い", "先に買った", "oldest"}
	latestMarkers = []string{"新しい", "一番新しい", "最近買った", "latest", "newest"}

	// Ordered so that a message naming two cuisines classifies the same
	// way on every call.
	categoryMarkers = []struct {
		category models.MenuCategory
		markers  []string
	}{
		{models.CategoryJapanese, []string{"和食", "和風", "japanese"}},
		{models.CategoryWestern, []string{"洋食", "洋風", "western", "italian", "french"}},
		{models.CategoryChinese, []string{"中華", "中華風", "chinese"}},
	}
)

// Classify routes a message given the live session state. Precedence, top to
// bottom: confirmation reply, additional proposal, stage proposal, menu
// plan, inventory op, greeting/unknown.
func (c *Classifier) Classify(message string, session *models.Session) Result {
	msg := strings.ToLower(strings.TrimSpace(message))
	res := Result{Pattern: PatternGreeting}

	if session != nil && session.AwaitingConfirmation() {
		res.Pattern = PatternConfirmationReply
		res.Strategy = replyStrategy(msg)
		return res
	}

	res.MenuCategory = detectCategory(msg)
	res.MainIngredient = detectMainIngredient(message)

	if containsAny(msg, c.cfg.AdditionalMarkers) && session != nil && session.Stage != models.StageCompleted {
		switch session.Stage {
		case models.StageSub:
			res.Pattern = PatternSubAdditional
		case models.StageSoup:
			res.Pattern = PatternSoupAdditional
		default:
			res.Pattern = PatternMainAdditional
		}
		return res
	}

	// Course-specific proposals beat the generic menu pattern: "スープを
	// 提案して" mentions neither 献立 nor menu but still names a course.
	if proposalRequest(msg) {
		switch {
		case containsAny(msg, soupMarkers):
			res.Pattern = PatternSoupProposal
			return res
		case containsAny(msg, subMarkers):
			res.Pattern = PatternSubProposal
			return res
		case containsAny(msg, mainMarkers):
			res.Pattern = PatternMainProposal
			return res
		}
	}

	if containsAny(msg, menuMarkers) {
		res.Pattern = PatternMenuPlan
		return res
	}

	if verb, ok := inventoryVerb(msg); ok {
		res.Pattern = PatternInventoryOp
		res.InventoryVerb = verb
		res.Strategy = inventoryStrategy(msg, verb)
		return res
	}

	return res
}

// proposalRequest reports whether the message asks for a dish suggestion.
func proposalRequest(msg string) bool {
	return containsAny(msg, []string{
		"提案", "おすすめ", "教えて", "作りたい", "suggest", "propose", "recommend", "idea",
	}) || containsAny(msg, mainMarkers) || containsAny(msg, subMarkers) || containsAny(msg, soupMarkers)
}

func inventoryVerb(msg string) (InventoryVerb, bool) {
	switch {
	case containsAny(msg, updateMarkers):
		return VerbUpdate, true
	case containsAny(msg, deleteMarkers):
		return VerbDelete, true
	case containsAny(msg, addMarkers):
		return VerbAdd, true
	case containsAny(msg, listMarkers):
		return VerbList, true
	}
	return "", false
}

func inventoryStrategy(msg string, verb InventoryVerb) string {
	if verb != VerbUpdate && verb != VerbDelete {
		return ""
	}
	switch {
	case containsAny(msg, allMarkers):
		return StrategyByNameAll
	case containsAny(msg, oldestMarkers):
		return StrategyByNameOldest
	case containsAny(msg, latestMarkers):
		return StrategyByNameLatest
	}
	return StrategyByName
}

// replyStrategy maps a free-form confirmation reply onto a concrete
// disambiguation strategy. Empty means the reply was not understood.
func replyStrategy(msg string) string {
	switch {
	case containsAny(msg, oldestMarkers):
		return StrategyByNameOldest
	case containsAny(msg, latestMarkers):
		return StrategyByNameLatest
	case containsAny(msg, allMarkers):
		return StrategyByNameAll
	}
	return ""
}

func detectCategory(msg string) models.MenuCategory {
	for _, entry := range categoryMarkers {
		if containsAny(msg, entry.markers) {
			return entry.category
		}
	}
	return ""
}

// detectMainIngredient pulls the ingredient out of phrasings like
// "鶏肉を使った..." or "... using chicken".
func detectMainIngredient(message string) string {
	if idx := strings.Index(message, "を使った"); idx > 0 {
		return strings.TrimSpace(lastSegment(message[:idx]))
	}
	if idx := strings.Index(message, "を使って"); idx > 0 {
		return strings.TrimSpace(lastSegment(message[:idx]))
	}
	lower := strings.ToLower(message)
	for _, marker := range []string{"using ", "with "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			rest := strings.TrimSpace(message[idx+len(marker):])
			if cut := strings.IndexAny(rest, " ,.、。"); cut > 0 {
				rest = rest[:cut]
			}
			return rest
		}
	}
	return ""
}

// lastSegment trims leading particles off a Japanese phrase fragment.
func lastSegment(s string) string {
	for _, sep := range []string{"、", "。", " ", "　", "は", "で"} {
		if idx := strings.LastIndex(s, sep); idx >= 0 {
			s = s[idx+len(sep):]
		}
	}
	return s
}

func containsAny(msg string, markers []string) bool {
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
