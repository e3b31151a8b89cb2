package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationFunc
}{
	m: map[string]ActivationFunc{
		"identity": func(x float64) float64 { return x },
		"tanh":     math.Tanh,
		"sigmoid":  func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) },
	},
}

func RegisterActivation(name string, fn ActivationFunc) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return errors.New("activation function is required")
	}
	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()
	if _, exists := activationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func GetActivation(name string) (ActivationFunc, error) {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()
	fn, ok := activationRegistry.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()
	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
