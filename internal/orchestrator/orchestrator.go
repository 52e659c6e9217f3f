// Package orchestrator wires one chat turn end to end: classify the message,
// build the prompt, plan the task graph, execute it, and shape the reply.
// One graph runs per session at a time.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/haasonsaas/kondate/internal/agent"
	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/format"
	"github.com/haasonsaas/kondate/internal/history"
	"github.com/haasonsaas/kondate/internal/planner"
	"github.com/haasonsaas/kondate/internal/progress"
	"github.com/haasonsaas/kondate/internal/prompts"
	"github.com/haasonsaas/kondate/internal/sessions"
	"github.com/haasonsaas/kondate/internal/stage"
	"github.com/haasonsaas/kondate/pkg/models"
)

// Metrics is the orchestrator's metrics hook.
type Metrics interface {
	ChatTurn(pattern string)
}

// Orchestrator owns the request pipeline and the per-session busy gate.
type Orchestrator struct {
	store      sessions.Store
	classifier *classify.Classifier
	prompts    *prompts.Builder
	planner    *planner.Planner
	executor   *agent.Executor
	hub        *progress.Hub
	history    *history.Store
	model      string
	metrics    Metrics
	logger     *slog.Logger

	mu   sync.Mutex
	busy map[string]bool
}

// New assembles the pipeline.
func New(
	store sessions.Store,
	classifier *classify.Classifier,
	promptBuilder *prompts.Builder,
	taskPlanner *planner.Planner,
	executor *agent.Executor,
	hub *progress.Hub,
	historyStore *history.Store,
	model string,
	metrics Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		prompts:    promptBuilder,
		planner:    taskPlanner,
		executor:   executor,
		hub:        hub,
		history:    historyStore,
		model:      model,
		metrics:    metrics,
		logger:     logger,
		busy:       make(map[string]bool),
	}
}

// Chat handles one turn. The confirm flag marks the message as an answer to
// a pending question, bypassing pattern matching. The returned response is
// always well-formed; an error return means the caller should map it to an
// HTTP status.
func (o *Orchestrator) Chat(ctx context.Context, userID, sessionID, message, authToken string, confirm bool) (*models.ChatResponse, error) {
	if !o.acquire(sessionID) {
		return nil, agent.ErrBusySession
	}
	defer o.release(sessionID)

	session, err := o.store.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	res := o.classifier.Classify(message, session)
	if confirm && session.Confirmation != nil {
		res = classify.Result{Pattern: classify.PatternConfirmationReply}
	}
	if o.metrics != nil {
		o.metrics.ChatTurn(string(res.Pattern))
	}
	o.logger.Info("chat turn",
		"session_id", sessionID,
		"user_id", userID,
		"pattern", res.Pattern,
	)

	var resp *models.ChatResponse
	switch {
	case res.Pattern == classify.PatternConfirmationReply:
		resp, err = o.resumeConfirmed(ctx, session, message, authToken)
	case res.Pattern == classify.PatternGreeting:
		resp = &models.ChatResponse{
			Response:  format.GreetingResponse(),
			Success:   true,
			ModelUsed: "none",
		}
	case res.Pattern == classify.PatternInventoryOp && res.InventoryVerb == classify.VerbList:
		// Listing needs no planning: a fixed single-task graph serves it.
		resp, err = o.runInventoryList(ctx, session, message, authToken)
	default:
		resp, err = o.plan(ctx, session, message, authToken, res)
	}
	if err != nil {
		return nil, err
	}
	resp.UserID = userID

	if err := o.persist(ctx, session); err != nil {
		return nil, err
	}
	return resp, nil
}

// plan runs the classify→prompt→plan→execute pipeline for one pattern.
func (o *Orchestrator) plan(ctx context.Context, session *models.Session, message, authToken string, res classify.Result) (*models.ChatResponse, error) {
	o.noteClassification(session, res)

	st := stageForPattern(res.Pattern, session)
	params := prompts.Params{
		Message:         message,
		SessionID:       session.ID,
		UserID:          session.UserID,
		MainIngredient:  res.MainIngredient,
		MenuCategory:    menuCategory(res, session),
		UsedIngredients: session.UsedIngredients,
		ExcludedTitles:  session.ProposedTitles[st],
		InventoryVerb:   res.InventoryVerb,
		Strategy:        res.Strategy,
	}

	graph, err := o.planner.Plan(ctx, prompts.System, o.prompts.Build(res.Pattern, params))
	if err != nil {
		if errors.Is(err, planner.ErrMalformedPlan) || errors.Is(err, planner.ErrPlanInvalid) {
			o.hub.Publish(session.ID, models.NewError("I could not work out how to handle that. Please rephrase."))
			return &models.ChatResponse{
				Response:  "I could not work out how to handle that. Please rephrase.",
				Success:   false,
				ModelUsed: o.model,
			}, nil
		}
		return nil, err
	}

	run, err := o.executor.Run(ctx, graph, agent.RunOptions{
		SessionID:       session.ID,
		AuthToken:       authToken,
		OriginalRequest: message,
		Session:         session,
	})
	if err != nil {
		return nil, err
	}
	if run.Suspended != nil {
		session.Confirmation = run.Suspended
		return format.ConfirmationResponse(run.Suspended.Question, session.ID), nil
	}

	return o.respond(session, res, graph, run.Results), nil
}

// runInventoryList executes the fixed inventory-viewer graph without an LLM
// round trip.
func (o *Orchestrator) runInventoryList(ctx context.Context, session *models.Session, message, authToken string) (*models.ChatResponse, error) {
	graph, err := models.NewTaskGraph([]*models.Task{{
		ID:          "task1",
		Description: "list the inventory",
		Service:     "inventory_service",
		Method:      "get_inventory",
		Parameters:  map[string]any{"user_id": session.UserID},
	}})
	if err != nil {
		return nil, err
	}

	run, err := o.executor.Run(ctx, graph, agent.RunOptions{
		SessionID:       session.ID,
		AuthToken:       authToken,
		OriginalRequest: message,
		Session:         session,
	})
	if err != nil {
		return nil, err
	}

	res := classify.Result{Pattern: classify.PatternInventoryOp, InventoryVerb: classify.VerbList}
	resp := o.respond(session, res, graph, run.Results)
	resp.ModelUsed = "none"
	return resp, nil
}

// resumeConfirmed resolves the pending confirmation with the user's reply:
// a stage-selection answer records the numbered choice, an ambiguity answer
// resumes or cancels the suspended graph.
func (o *Orchestrator) resumeConfirmed(ctx context.Context, session *models.Session, reply, authToken string) (*models.ChatResponse, error) {
	conf := session.Confirmation
	if conf != nil && conf.Kind == models.ConfirmStageSelection {
		return o.selectByReply(session, reply)
	}
	if conf == nil || conf.Ambiguity == nil {
		session.Confirmation = nil
		return &models.ChatResponse{
			Response:  format.GreetingResponse(),
			Success:   true,
			ModelUsed: "none",
		}, nil
	}

	choice := agent.ParseReply(reply, conf.Ambiguity.Items)
	if choice.Rejected {
		session.Confirmation = nil
		o.hub.Publish(session.ID, models.NewComplete("cancelled"))
		return &models.ChatResponse{
			Response:  "Okay, I cancelled that operation.",
			Success:   true,
			ModelUsed: "none",
		}, nil
	}

	graph, completed, err := agent.ResumeGraph(conf.Ambiguity, choice)
	if err != nil {
		return nil, err
	}
	session.Confirmation = nil

	run, err := o.executor.Run(ctx, graph, agent.RunOptions{
		SessionID:       session.ID,
		AuthToken:       authToken,
		OriginalRequest: conf.OriginalRequest,
		Session:         session,
		Completed:       completed,
	})
	if err != nil {
		return nil, err
	}
	if run.Suspended != nil {
		session.Confirmation = run.Suspended
		return format.ConfirmationResponse(run.Suspended.Question, session.ID), nil
	}

	// Re-classifying the original request recovers the verb for the reply
	// text; the classifier is deterministic.
	res := o.classifier.Classify(conf.OriginalRequest, &models.Session{})
	return o.respond(session, res, graph, run.Results), nil
}

// selectByReply resolves a numbered chat reply against the pending proposal.
func (o *Orchestrator) selectByReply(session *models.Session, reply string) (*models.ChatResponse, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(reply), "番"))
	if err != nil {
		return &models.ChatResponse{
			Response:          "Please reply with the number of your choice.",
			Success:           true,
			RequiresSelection: true,
			CurrentStage:      session.Stage,
			ModelUsed:         "none",
		}, nil
	}

	result, err := stage.Select(session, n-1)
	if err != nil {
		return nil, err
	}
	msg := format.SelectionMessage(result.Selected, result.Stage)
	if result.Stage == models.StageCompleted {
		o.hub.Publish(session.ID, models.NewComplete(msg))
	}
	return &models.ChatResponse{
		Response:        msg,
		Success:         true,
		CurrentStage:    result.Stage,
		UsedIngredients: result.UsedIngredients,
		MenuCategory:    result.MenuCategory,
		ModelUsed:       "none",
	}, nil
}

// respond renders the run results for the pattern and records any offered
// candidates on the session.
func (o *Orchestrator) respond(session *models.Session, res classify.Result, graph *models.TaskGraph, results map[string]*models.ToolResult) *models.ChatResponse {
	byTool := format.ReKeyByTool(graph, results)
	if items := format.InventoryNames(byTool); items != nil {
		session.SetInventoryItems(items)
	}

	var resp *models.ChatResponse
	switch res.Pattern {
	case classify.PatternInventoryOp:
		resp = &models.ChatResponse{
			Response: format.InventoryResponse(res.InventoryVerb, byTool),
			Success:  true,
		}
	case classify.PatternMenuPlan:
		resp = &models.ChatResponse{
			Response:   format.MenuPlanResponse(byTool, session),
			Success:    true,
			Candidates: format.MenuPlanCandidates(byTool),
		}
	default:
		st := stageForPattern(res.Pattern, session)
		candidates := format.ProposalCandidates(st, byTool)
		if len(candidates) == 0 {
			resp = &models.ChatResponse{
				Response: "I could not find any suggestions right now. Please try again.",
				Success:  false,
			}
			break
		}
		taskID := format.ProposalTaskID(st, graph, results)
		stage.RecordProposal(session, st, taskID, candidates)
		resp = format.ProposalResponse(st, taskID, candidates, session)
	}

	resp.ModelUsed = o.model
	o.hub.Publish(session.ID, models.NewComplete(resp.Response))
	return resp
}

// Select records a candidate choice and advances the stage. A non-empty
// taskID must echo the proposal that offered the candidates.
func (o *Orchestrator) Select(ctx context.Context, userID, sessionID, taskID string, index int) (*models.SelectionResponse, error) {
	var result *stage.Result
	err := o.store.Update(ctx, sessionID, func(session *models.Session) error {
		if session.UserID != userID {
			return sessions.ErrOwnership
		}
		if err := stage.ValidateTaskID(session, taskID); err != nil {
			return err
		}
		var selErr error
		result, selErr = stage.Select(session, index)
		return selErr
	})
	if err != nil {
		return nil, err
	}

	msg := format.SelectionMessage(result.Selected, result.Stage)
	if result.Stage == models.StageCompleted {
		// The menu is done: close the session's stream so an attached
		// subscriber sees the completion.
		o.hub.Publish(sessionID, models.NewComplete(msg))
	}
	return &models.SelectionResponse{
		Success:           true,
		Response:          msg,
		CurrentStage:      result.Stage,
		UsedIngredients:   result.UsedIngredients,
		MenuCategory:      result.MenuCategory,
		RequiresNextStage: result.RequiresNext,
	}, nil
}

// AuthorizeStream checks that the user may subscribe to the session's
// progress stream. A user's own default session id passes before the session
// exists; any other id must name a stored session the user owns.
func (o *Orchestrator) AuthorizeStream(ctx context.Context, userID, sessionID string) error {
	if sessionID == userID {
		return nil
	}
	session, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return sessions.ErrOwnership
	}
	return nil
}

// Save persists the session's selected menu to history.
func (o *Orchestrator) Save(ctx context.Context, userID, sessionID string, recipes map[models.Stage]*models.Recipe) (*models.SaveResponse, error) {
	session, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, sessions.ErrOwnership
	}
	ids, err := stage.SaveMenu(ctx, o.history, session, recipes)
	if err != nil {
		return nil, err
	}
	return &models.SaveResponse{Success: true, SavedIDs: ids}, nil
}

// History lists the user's saved menus, newest first.
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]*history.Record, error) {
	return o.history.List(ctx, userID, limit)
}

// Logout purges every session of the user and drops their streams.
func (o *Orchestrator) Logout(ctx context.Context, userID string) error {
	ids, err := o.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		o.hub.Drop(id)
	}
	o.logger.Info("user logged out", "user_id", userID, "sessions_purged", len(ids))
	return nil
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy[sessionID] {
		return false
	}
	o.busy[sessionID] = true
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	delete(o.busy, sessionID)
	o.mu.Unlock()
}

// persist commits the turn's session mutations.
func (o *Orchestrator) persist(ctx context.Context, session *models.Session) error {
	return o.store.Update(ctx, session.ID, func(stored *models.Session) error {
		*stored = *session.Clone()
		return nil
	})
}

// noteClassification caches classifier extractions the next plan may
// reference through the session context.
func (o *Orchestrator) noteClassification(session *models.Session, res classify.Result) {
	if res.MainIngredient != "" {
		session.Context["main_ingredient"] = res.MainIngredient
	}
	if res.MenuCategory != "" {
		session.MenuCategory = res.MenuCategory
		session.Context["menu_type"] = string(res.MenuCategory)
	}
}

func menuCategory(res classify.Result, session *models.Session) models.MenuCategory {
	if res.MenuCategory != "" {
		return res.MenuCategory
	}
	return session.MenuCategory
}

// stageForPattern maps a proposal pattern to its menu stage; other patterns
// follow the session's current stage.
func stageForPattern(p classify.Pattern, session *models.Session) models.Stage {
	switch p {
	case classify.PatternMainProposal, classify.PatternMainAdditional:
		return models.StageMain
	case classify.PatternSubProposal, classify.PatternSubAdditional:
		return models.StageSub
	case classify.PatternSoupProposal, classify.PatternSoupAdditional:
		return models.StageSoup
	}
	return session.Stage
}
