package app

import "sync"

// Store is the single owner of State. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	return &Store{state: initial, subs: make(map[int]func(State))}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces a into the state and notifies subscribers with the result.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers fn to run after every dispatch. Subscribers run on the
// dispatching goroutine, outside the store lock.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// BeginLoading sets the global loading flag if it is not already set. The
// returned end func clears it. ok is false when another action holds the flag.
func (s *Store) BeginLoading() (end func(), ok bool) {
	s.mu.Lock()
	if s.state.Loading {
		s.mu.Unlock()
		return nil, false
	}
	s.state = Reduce(s.state, LoadingSet{Loading: true})
	next := s.state
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	var once sync.Once
	return func() {
		once.Do(func() { s.Dispatch(LoadingSet{Loading: false}) })
	}, true
}

// snapshotSubs copies the subscriber list. Caller holds s.mu.
func (s *Store) snapshotSubs() []func(State) {
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
