package nn

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"kora/internal/model"
)

var (
	ErrRuleExists   = errors.New("plasticity rule already registered")
	ErrRuleNotFound = errors.New("plasticity rule not found")
)

// Rule updates a weight matrix from one step of trace and spike state.
type Rule interface {
	Name() string
	Apply(w *Weights, preTrace, postTrace []float64, preSpikes, postSpikes []bool, modulation float64)
}

// RuleFactory builds a rule from an immutable configuration.
type RuleFactory func(cfg model.PlasticityConfig) (Rule, error)

var ruleRegistry = struct {
	mu sync.RWMutex
	m  map[string]RuleFactory
}{
	m: make(map[string]RuleFactory),
}

func init() {
	initializeBuiltInRules()
}

func initializeBuiltInRules() {
	MustRegisterRule(PlasticityCausalSTDP, func(cfg model.PlasticityConfig) (Rule, error) {
		return NewCausalSTDP(cfg)
	})
	MustRegisterRule(PlasticityNone, func(cfg model.PlasticityConfig) (Rule, error) {
		if err := ValidatePlasticityConfig(cfg); err != nil {
			return nil, err
		}
		return &Frozen{cfg: cfg}, nil
	})
}

func RegisterRule(name string, factory RuleFactory) error {
	if name == "" {
		return errors.New("plasticity rule name is required")
	}
	if factory == nil {
		return errors.New("plasticity rule factory is required")
	}

	ruleRegistry.mu.Lock()
	defer ruleRegistry.mu.Unlock()

	if _, exists := ruleRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, name)
	}
	ruleRegistry.m[name] = factory
	return nil
}

func MustRegisterRule(name string, factory RuleFactory) {
	if err := RegisterRule(name, factory); err != nil {
		panic(err)
	}
}

// NewRule resolves cfg.Rule (aliases included) and builds the rule.
func NewRule(cfg model.PlasticityConfig) (Rule, error) {
	name := NormalizePlasticityRuleName(cfg.Rule)

	ruleRegistry.mu.RLock()
	factory, ok := ruleRegistry.m[name]
	ruleRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, cfg.Rule)
	}
	return factory(cfg)
}

func ListRules() []string {
	ruleRegistry.mu.RLock()
	defer ruleRegistry.mu.RUnlock()

	names := make([]string, 0, len(ruleRegistry.m))
	for name := range ruleRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRuleRegistryForTests() {
	ruleRegistry.mu.Lock()
	ruleRegistry.m = make(map[string]RuleFactory)
	ruleRegistry.mu.Unlock()
	initializeBuiltInRules()
}
