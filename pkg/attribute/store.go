package attribute

import (
	"fmt"
	"sort"
	"sync"
)

// Store maps attribute names to attributes of one owner.
type Store struct {
	owner string
	mu    sync.RWMutex
	attrs map[string]Ref
}

func NewStore(owner string) *Store {
	return &Store{owner: owner, attrs: make(map[string]Ref)}
}

func (s *Store) Owner() string { return s.owner }

// Register adds ref under its name. A duplicate name is a programming error.
func (s *Store) Register(ref Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attrs[ref.Name()]; exists {
		panic(fmt.Sprintf("attribute %s.%s registered twice", s.owner, ref.Name()))
	}
	s.attrs[ref.Name()] = ref
}

func (s *Store) Get(name string) (Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", s.owner, name, ErrNotFound)
	}
	return ref, nil
}

func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set writes v through the external path, honouring the Write flag.
func (s *Store) Set(name string, v Value) error {
	ref, err := s.Get(name)
	if err != nil {
		return err
	}
	return ref.set(v)
}

func (s *Store) Values() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.attrs))
	for name, ref := range s.attrs {
		out[name] = ref.Value()
	}
	return out
}

func (s *Store) View() View {
	return View{store: s}
}

// View is the read-only capability handed to loggers.
type View struct {
	store *Store
}

func (v View) Owner() string { return v.store.owner }

func (v View) Names() []string { return v.store.Names() }

func (v View) Value(name string) (Value, error) {
	ref, err := v.store.Get(name)
	if err != nil {
		return Value{}, err
	}
	return ref.Value(), nil
}

func (v View) Values() map[string]Value { return v.store.Values() }
