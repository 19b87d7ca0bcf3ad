package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/farmtrace/provenance/common/models"
)

// maxCachedFilters bounds the compiled-program cache. Expressions past
// the cap still run, they just recompile per request.
const maxCachedFilters = 128

// EventService serves the synchronized event history with optional kind
// and CEL filtering. Filters address events by their wire field names,
// e.g. `event.kind == 'BatchCreated' && event.batch_created.batch_id == 7.0`.
type EventService struct {
	history HistorySource
	env     *cel.Env
	logger  Logger

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEventService creates the event query service.
func NewEventService(history HistorySource, logger Logger) (*EventService, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter env: %w", err)
	}
	return &EventService{
		history: history,
		env:     env,
		logger:  logger,
		cache:   make(map[string]cel.Program),
	}, nil
}

// Query returns recorded events newest first. kind narrows to one event
// kind, limit truncates, filter applies a CEL expression per event.
func (s *EventService) Query(kind string, limit int, filter string) ([]models.DomainEvent, error) {
	var filters []func(models.DomainEvent) bool
	if kind != "" {
		k := models.EventKind(kind)
		if !models.KnownKind(k) {
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}
		filters = append(filters, func(e models.DomainEvent) bool { return e.Kind == k })
	}

	events := s.history.History(filters...)

	if filter != "" {
		prg, err := s.compileFilter(filter)
		if err != nil {
			return nil, err
		}

		kept := make([]models.DomainEvent, 0, len(events))
		for _, event := range events {
			ok, err := s.match(prg, event)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, event)
			}
		}
		events = kept
	}

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// match runs one event through a compiled filter. Evaluation errors are
// non-matches, not failures: a filter referencing batch fields must not
// break on product events. A non-boolean result is a broken expression
// and fails the whole query.
func (s *EventService) match(prg cel.Program, event models.DomainEvent) (bool, error) {
	fields, err := eventFields(event)
	if err != nil {
		return false, fmt.Errorf("failed to project event %s: %w", event.SequenceKey, err)
	}

	out, _, err := prg.Eval(map[string]interface{}{"event": fields})
	if err != nil {
		s.logger.Debug("filter skipped event", "sequence_key", event.SequenceKey, "error", err)
		return false, nil
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter did not evaluate to a boolean, got %T", out.Value())
	}
	return matched, nil
}

// compileFilter compiles an expression, serving repeats from the cache.
func (s *EventService) compileFilter(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, exists := s.cache[expr]
	s.mu.RUnlock()
	if exists {
		return prg, nil
	}

	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", issues.Err())
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	s.mu.Lock()
	if len(s.cache) < maxCachedFilters {
		s.cache[expr] = prg
	}
	s.mu.Unlock()
	return prg, nil
}

// eventFields projects an event into the filter activation as loosely
// typed JSON so expressions address fields by their wire names.
func eventFields(event models.DomainEvent) (map[string]interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
