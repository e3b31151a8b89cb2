package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrSelectorExists   = errors.New("selector already registered")
	ErrSelectorNotFound = errors.New("selector not found")
)

// SelectorFactory builds a selector from the run's reproduction ratio.
type SelectorFactory func(reproductionRatio float64) Selector

var selectorRegistry = struct {
	mu sync.RWMutex
	m  map[string]SelectorFactory
}{
	m: map[string]SelectorFactory{
		"roulette": func(float64) Selector { return RouletteSelector{} },
		"truncation": func(ratio float64) Selector {
			return TruncationSelector{ReproductionRatio: ratio}
		},
	},
}

// RegisterSelector adds a named selector policy.
func RegisterSelector(name string, factory SelectorFactory) error {
	if name == "" {
		return errors.New("selector name is required")
	}
	if factory == nil {
		return errors.New("selector factory is required")
	}
	selectorRegistry.mu.Lock()
	defer selectorRegistry.mu.Unlock()
	if _, exists := selectorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSelectorExists, name)
	}
	selectorRegistry.m[name] = factory
	return nil
}

func SelectorByName(name string, reproductionRatio float64) (Selector, error) {
	selectorRegistry.mu.RLock()
	factory, ok := selectorRegistry.m[name]
	selectorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, name)
	}
	return factory(reproductionRatio), nil
}

func ListSelectors() []string {
	selectorRegistry.mu.RLock()
	defer selectorRegistry.mu.RUnlock()
	names := make([]string, 0, len(selectorRegistry.m))
	for name := range selectorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
