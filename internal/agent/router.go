// Package agent routes agent proposals to canonical actions and confirmed
// events to their executors.
//
// Routing is split by workflow phase. At proposal time, ResolveAction maps
// an agent identity to the action the proposal records; it is total, so
// unknown agents land on a generic fallback instead of failing. At
// confirmation time, ResolveExecutor looks up the handler for the exact
// (agent, action) pair against a closed allow-list: running a side effect
// requires an explicit registration, never string pattern-matching.
package agent

import (
	"fmt"

	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/service/calendar"
	"github.com/ashita-ai/kaigi/internal/service/summarize"
)

// DefaultActions returns the proposal-time mapping from well-known agent
// identities to their canonical actions. The table is data injected at
// construction so tests can substitute alternates.
func DefaultActions() map[string]string {
	return map[string]string{
		model.AgentMeetingNotes: model.ActionCreateNote,
		model.AgentTask:         model.ActionCreateTask,
		model.AgentScheduler:    model.ActionCreateCalendarEvent,
		model.AgentKnowledge:    model.ActionExtractKnowledge,
	}
}

type executorKey struct {
	agent  string
	action string
}

// Router resolves agents to proposal actions and (agent, action) pairs to
// registered executors. Immutable after construction; safe for concurrent
// use.
type Router struct {
	actions   map[string]string
	executors map[executorKey]Executor
}

// NewRouter creates an empty Router over the given action table.
func NewRouter(actions map[string]string) *Router {
	return &Router{
		actions:   actions,
		executors: make(map[executorKey]Executor),
	}
}

// DefaultRouter wires the standard executor set. Note the deliberate
// asymmetry for MeetingNotesAgent: its proposals default to create_note,
// but the pair it may confirm is update_note — revising an existing note
// is confirmable, creating one is not.
func DefaultRouter(cal calendar.Client, extractor *summarize.Summarizer) *Router {
	r := NewRouter(DefaultActions())
	r.Register(model.AgentTask, model.ActionCreateTask, &CreateTaskExecutor{})
	r.Register(model.AgentMeetingNotes, model.ActionUpdateNote, &UpdateNoteExecutor{})
	r.Register(model.AgentScheduler, model.ActionCreateCalendarEvent, &CreateCalendarEventExecutor{Calendar: cal})
	r.Register(model.AgentKnowledge, model.ActionExtractKnowledge, &ExtractKnowledgeExecutor{Extractor: extractor})
	return r
}

// Register adds an executor for the exact (agent, action) pair.
func (r *Router) Register(agent, action string, ex Executor) {
	r.executors[executorKey{agent: agent, action: action}] = ex
}

// ResolveAction maps an agent identity to its canonical proposal action.
// Total: any string resolves, unknown agents to the generic fallback.
func (r *Router) ResolveAction(agent string) string {
	if action, ok := r.actions[agent]; ok {
		return action
	}
	return model.ActionPropose
}

// ResolveExecutor returns the executor registered for the exact
// (agent, action) pair, or ErrUnsupportedAction for anything outside the
// allow-list, including plausible-looking pairs that were never wired.
func (r *Router) ResolveExecutor(agent, action string) (Executor, error) {
	ex, ok := r.executors[executorKey{agent: agent, action: action}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedAction, agent, action)
	}
	return ex, nil
}
