package models

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// TaskState tracks a task through graph execution.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskReady     TaskState = "ready"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskSkipped   TaskState = "skipped"
)

// taskIDPattern is the required shape of planner-assigned task ids.
var taskIDPattern = regexp.MustCompile(`^task\d+$`)

// ValidTaskID reports whether id matches the planner id shape ("task1", "task2", ...).
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// Task is one node of a planned task graph: a single typed service call
// plus the ids of the tasks whose results it depends on.
type Task struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Service      string         `json:"service"`
	Method       string         `json:"method"`
	Parameters   map[string]any `json:"parameters"`
	Dependencies []string       `json:"dependencies"`

	// Runtime fields, populated by the executor. Never part of the wire shape.
	State  TaskState   `json:"-"`
	Result *ToolResult `json:"-"`
	Err    error       `json:"-"`
}

// ToolName returns the registry key for the task's call ("service.method").
func (t *Task) ToolName() string {
	return t.Service + "." + t.Method
}

// TaskGraph is an ordered set of tasks with a validated dependency DAG.
// Created by the planner, consumed and mutated only by the executor.
type TaskGraph struct {
	Tasks []*Task         `json:"tasks"`
	byID  map[string]*Task
}

// NewTaskGraph builds a graph from planner output, validating ids,
// dependency existence, and acyclicity. Task order is preserved.
func NewTaskGraph(tasks []*Task) (*TaskGraph, error) {
	g := &TaskGraph{
		Tasks: tasks,
		byID:  make(map[string]*Task, len(tasks)),
	}
	for _, t := range tasks {
		if !ValidTaskID(t.ID) {
			return nil, fmt.Errorf("invalid task id %q", t.ID)
		}
		if _, dup := g.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		g.byID[t.ID] = t
		t.State = TaskPending
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := g.byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return nil, fmt.Errorf("task %s depends on itself", t.ID)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns the task with the given id.
func (g *TaskGraph) Get(id string) (*Task, bool) {
	t, ok := g.byID[id]
	return t, ok
}

// Len returns the number of tasks in the graph.
func (g *TaskGraph) Len() int {
	return len(g.Tasks)
}

// Ready returns the pending tasks whose dependencies have all succeeded.
func (g *TaskGraph) Ready() []*Task {
	var ready []*Task
	for _, t := range g.Tasks {
		if t.State != TaskPending {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			if d, found := g.byID[dep]; !found || d.State != TaskSucceeded {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// Done reports whether no task can make further progress: every task is in a
// terminal state, or the only remaining pending tasks depend on failed ones.
func (g *TaskGraph) Done() bool {
	for _, t := range g.Tasks {
		switch t.State {
		case TaskPending, TaskReady, TaskRunning:
			return false
		}
	}
	return true
}

// SkipDownstream marks every pending task transitively depending on the
// given task as skipped. Used for fail-stop after a non-ambiguity failure.
func (g *TaskGraph) SkipDownstream(failedID string) {
	skipped := map[string]bool{failedID: true}
	changed := true
	for changed {
		changed = false
		for _, t := range g.Tasks {
			if t.State != TaskPending {
				continue
			}
			for _, dep := range t.Dependencies {
				if skipped[dep] {
					t.State = TaskSkipped
					skipped[t.ID] = true
					changed = true
					break
				}
			}
		}
	}
}

// Remaining returns the ids of tasks that have not reached a terminal state.
// Used when persisting a suspended graph into a confirmation record.
func (g *TaskGraph) Remaining() []string {
	var ids []string
	for _, t := range g.Tasks {
		switch t.State {
		case TaskPending, TaskReady, TaskRunning:
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (g *TaskGraph) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through task %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range g.byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, t := range g.Tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalJSON accepts the planner wire shape, tolerating absent
// dependency arrays.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Dependencies == nil {
		a.Dependencies = []string{}
	}
	*t = Task(a)
	return nil
}
