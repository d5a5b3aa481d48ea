package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrModulePaused is returned by Guard while a module's mutations are halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects a mutation when module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewPauseSet returns a set with the listed modules already paused.
func NewPauseSet(modules ...string) *PauseSet {
	s := &PauseSet{paused: make(map[string]struct{})}
	for _, m := range modules {
		s.Pause(m)
	}
	return s
}

func (s *PauseSet) Pause(module string) {
	module = strings.ToLower(strings.TrimSpace(module))
	if module == "" {
		return
	}
	s.mu.Lock()
	s.paused[module] = struct{}{}
	s.mu.Unlock()
}

func (s *PauseSet) Resume(module string) {
	module = strings.ToLower(strings.TrimSpace(module))
	s.mu.Lock()
	delete(s.paused, module)
	s.mu.Unlock()
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.paused[strings.ToLower(module)]
	return ok
}

// Paused lists the halted modules in lexical order.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for m := range s.paused {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
