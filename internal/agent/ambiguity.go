package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Disambiguation strategies a confirmation reply can resolve to.
const (
	StrategyAll    = "by_name_all"
	StrategyOldest = "by_name_oldest"
	StrategyLatest = "by_name_latest"
	StrategyByID   = "by_id"
)

// Detector inspects tool results for ambiguity markers and builds the
// clarification question.
type Detector struct{}

// NewDetector creates a detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the confirmation record when a tool reported multiple
// matches, or nil when the result needs no user input. The caller persists
// the record and suspends the graph.
func (d *Detector) Detect(task *models.Task, result *models.ToolResult, graph *models.TaskGraph, completed map[string]*models.ToolResult, originalRequest string) *models.Confirmation {
	if result.Outcome() != models.OutcomeAmbiguous {
		return nil
	}

	snapshot := make(map[string]*models.ToolResult, len(completed))
	for id, res := range completed {
		snapshot[id] = res
	}

	return &models.Confirmation{
		Kind:            models.ConfirmAmbiguity,
		OriginalRequest: originalRequest,
		Question:        d.question(task, result.Items),
		Ambiguity: &models.Ambiguity{
			TaskID:    task.ID,
			Items:     result.Items,
			Graph:     graph.Tasks,
			Completed: snapshot,
		},
		CreatedAt: time.Now(),
	}
}

// question lists the candidate rows and the choices the user has.
func (d *Detector) question(task *models.Task, items []models.AmbiguousItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d matching items:\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s", i+1, item.Name)
		if item.Quantity > 0 {
			fmt.Fprintf(&sb, " (%g %s", item.Quantity, item.Unit)
			if item.CreatedAt != "" {
				fmt.Fprintf(&sb, ", added %s", item.CreatedAt)
			}
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Which one? You can answer \"all\", \"oldest\", \"latest\", or a number.")
	return sb.String()
}

// Choice is the concrete strategy a confirmation reply resolved to.
type Choice struct {
	Strategy string
	ItemID   string
	Rejected bool
}

// ParseReply converts the user's free-form confirmation reply into a
// concrete choice. A reply naming no strategy, id, or list position is a
// rejection: the graph is cancelled rather than guessed at.
func ParseReply(reply string, items []models.AmbiguousItem) Choice {
	msg := strings.ToLower(strings.TrimSpace(reply))

	if strategy := replyStrategyFromClassifier(msg); strategy != "" {
		return Choice{Strategy: strategy}
	}

	// A bare number picks the Nth listed item.
	if n, err := strconv.Atoi(strings.TrimSuffix(msg, "番")); err == nil {
		if n >= 1 && n <= len(items) {
			return Choice{Strategy: StrategyByID, ItemID: items[n-1].ID}
		}
	}

	// An exact id match picks that row.
	for _, item := range items {
		if item.ID != "" && strings.Contains(msg, strings.ToLower(item.ID)) {
			return Choice{Strategy: StrategyByID, ItemID: item.ID}
		}
	}

	return Choice{Rejected: true}
}

// replyStrategyFromClassifier reuses the classifier's qualifier tables so
// "the oldest one" and "古いほう" resolve identically in both paths.
func replyStrategyFromClassifier(msg string) string {
	c := classify.New(classify.Config{})
	session := &models.Session{Confirmation: &models.Confirmation{Kind: models.ConfirmAmbiguity}}
	res := c.Classify(msg, session)
	switch res.Strategy {
	case classify.StrategyByNameAll:
		return StrategyAll
	case classify.StrategyByNameOldest:
		return StrategyOldest
	case classify.StrategyByNameLatest:
		return StrategyLatest
	}
	return ""
}

// ResumeGraph rebuilds the suspended graph with the ambiguous task's
// parameters substituted for the user's choice. Completed results are
// replayed, not re-executed.
func ResumeGraph(amb *models.Ambiguity, choice Choice) (*models.TaskGraph, map[string]*models.ToolResult, error) {
	if choice.Rejected {
		return nil, nil, fmt.Errorf("user rejected the pending operation")
	}

	tasks := make([]*models.Task, len(amb.Graph))
	for i, t := range amb.Graph {
		clone := *t
		clone.Parameters = make(map[string]any, len(t.Parameters)+2)
		for k, v := range t.Parameters {
			clone.Parameters[k] = v
		}
		if t.ID == amb.TaskID {
			clone.Parameters["strategy"] = choice.Strategy
			if choice.ItemID != "" {
				clone.Parameters["item_id"] = choice.ItemID
			}
		}
		tasks[i] = &clone
	}

	graph, err := models.NewTaskGraph(tasks)
	if err != nil {
		return nil, nil, err
	}

	completed := make(map[string]*models.ToolResult, len(amb.Completed))
	for id, res := range amb.Completed {
		if id == amb.TaskID {
			// The ambiguous task re-runs with the substituted strategy.
			continue
		}
		completed[id] = res
		if t, ok := graph.Get(id); ok {
			t.State = models.TaskSucceeded
			t.Result = res
		}
	}
	return graph, completed, nil
}
