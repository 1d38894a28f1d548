package store

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Action is the only way to change the state of a store
type Action struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewAction creates an action with a lexically sortable id, so that a log of
// dispatched actions can be ordered by id alone
func NewAction(actionType string, payload any) Action {
	return Action{
		ID:      ulid.Make().String(),
		Type:    actionType,
		Payload: payload,
	}
}

// Reducer returns the next state given the current state and an action. It
// must not modify the state it is given.
type Reducer func(state any, action Action) any

// State is the composed state of a store built with CombineReducers
type State map[string]any

// CombineReducers creates a reducer that hands each named slice of a State to
// its own reducer. A new State is returned only if a slice has changed.
func CombineReducers(reducers map[string]Reducer) Reducer {
	slices := make(map[string]Reducer, len(reducers))
	for name, r := range reducers {
		slices[name] = r
	}

	return func(state any, action Action) any {
		var current State
		switch s := state.(type) {
		case State:
			current = s
		case map[string]any:
			current = State(s)
		}

		var next State

		for name, reducer := range slices {
			before := current[name]
			after := reducer(before, action)

			if !same(before, after) {
				if next == nil {
					next = make(State, len(slices))
					for k, v := range current {
						next[k] = v
					}
				}
				next[name] = after
			}
		}

		if next == nil {
			if current == nil {
				return State{}
			}
			return current
		}

		return next
	}
}

// same compares slice states by identity where possible and falls back to
// treating uncomparable values as changed
func same(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

type Dispatcher func(action Action)

// API is the part of a store that middleware can reach
type API interface {
	State() any
	Dispatch(action Action)
}

// Middleware wraps the dispatch chain. Middleware is applied in the order it
// is given, the first one seeing each action first.
type Middleware func(api API) func(next Dispatcher) Dispatcher

type Store struct {
	mu      sync.Mutex
	reducer Reducer
	state   any

	subscribersMu sync.Mutex
	subscribers   map[int]func()
	nextID        int

	dispatch Dispatcher
}

// New creates a store with the given root reducer. The initial state is run
// through the reducer once so that every slice is initialized.
func New(reducer Reducer, initialState any, middleware ...Middleware) *Store {
	s := &Store{
		reducer:     reducer,
		subscribers: map[int]func(){},
	}

	s.state = reducer(initialState, Action{Type: ActionInit})

	var dispatch Dispatcher = s.reduce
	for i := len(middleware) - 1; i >= 0; i-- {
		dispatch = middleware[i](s)(dispatch)
	}
	s.dispatch = dispatch

	return s
}

const ActionInit string = "@@store/init"

func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Dispatch runs action through the middleware chain and the reducer. Subscribers
// are notified after the new state has been stored.
func (s *Store) Dispatch(action Action) {
	s.dispatch(action)
}

// Subscribe registers a listener that is called after each dispatched action.
// The returned func removes the listener again.
func (s *Store) Subscribe(listener func()) func() {
	if listener == nil {
		panic(fmt.Errorf("store: listener must not be nil"))
	}

	s.subscribersMu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = listener
	s.subscribersMu.Unlock()

	return func() {
		s.subscribersMu.Lock()
		delete(s.subscribers, id)
		s.subscribersMu.Unlock()
	}
}

func (s *Store) apply(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.reducer(s.state, action)
}

func (s *Store) reduce(action Action) {
	s.apply(action)

	s.subscribersMu.Lock()
	listeners := make([]func(), 0, len(s.subscribers))
	for _, l := range s.subscribers {
		listeners = append(listeners, l)
	}
	s.subscribersMu.Unlock()

	for _, l := range listeners {
		l()
	}
}
