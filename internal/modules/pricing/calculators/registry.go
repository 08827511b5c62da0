package calculators

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// Registry manages all registered strategy calculators, keyed by rule type.
type Registry struct {
	calculators map[string]Calculator
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewRegistry creates an empty calculator registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		calculators: make(map[string]Calculator),
		log:         log.With().Str("component", "calculator_registry").Logger(),
	}
}

// Register registers a calculator, replacing one with the same name.
func (r *Registry) Register(calculator Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calculators[calculator.Name()] = calculator
	r.log.Debug().Str("name", calculator.Name()).Msg("Registered calculator")
}

// Get retrieves a calculator by name.
func (r *Registry) Get(name string) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calculator, ok := r.calculators[name]
	if !ok {
		return nil, fmt.Errorf("calculator not found: %s", name)
	}
	return calculator, nil
}

// For returns the calculator for a rule type.
func (r *Registry) For(ruleType domain.RuleType) (Calculator, error) {
	return r.Get(string(ruleType))
}

// List returns all registered calculators ordered by name.
func (r *Registry) List() []Calculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calculators := make([]Calculator, 0, len(r.calculators))
	for _, calc := range r.calculators {
		calculators = append(calculators, calc)
	}
	sort.Slice(calculators, func(i, j int) bool { return calculators[i].Name() < calculators[j].Name() })
	return calculators
}

// NewPopulatedRegistry creates a registry with every strategy registered.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	registry := NewRegistry(log)

	registry.Register(NewCostPlusCalculator(log))
	registry.Register(NewCompetitiveCalculator(log))
	registry.Register(NewBrandPremiumCalculator(log))
	registry.Register(NewConditionAdjustedCalculator(log))

	return registry
}
