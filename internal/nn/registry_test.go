package nn

import (
	"errors"
	"reflect"
	"testing"

	"kora/internal/model"
)

type countingRule struct {
	calls int
}

func (r *countingRule) Name() string { return "counting" }

func (r *countingRule) Apply(_ *Weights, _, _ []float64, _, _ []bool, _ float64) {
	r.calls++
}

func TestRegisterAndResolveRule(t *testing.T) {
	resetRuleRegistryForTests()
	t.Cleanup(resetRuleRegistryForTests)

	counter := &countingRule{}
	if err := RegisterRule("counting", func(model.PlasticityConfig) (Rule, error) { return counter, nil }); err != nil {
		t.Fatalf("register rule: %v", err)
	}

	cfg := model.DefaultPlasticityConfig()
	cfg.Rule = "counting"
	net, err := NewNetwork(3, cfg)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	net.Step([]bool{true, false, false}, 1, true)
	net.Step([]bool{false, false, false}, 1, false)
	if counter.calls != 1 {
		t.Fatalf("expected rule applied once, got %d", counter.calls)
	}
}

func TestRegisterRuleValidation(t *testing.T) {
	resetRuleRegistryForTests()
	t.Cleanup(resetRuleRegistryForTests)

	factory := func(model.PlasticityConfig) (Rule, error) { return &countingRule{}, nil }
	if err := RegisterRule("", factory); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterRule("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if err := RegisterRule(PlasticityCausalSTDP, factory); !errors.Is(err, ErrRuleExists) {
		t.Fatalf("expected ErrRuleExists, got %v", err)
	}
}

func TestNewRuleAliasesAndUnknown(t *testing.T) {
	cfg := model.DefaultPlasticityConfig()
	cfg.Rule = "STDP"
	rule, err := NewRule(cfg)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	if rule.Name() != PlasticityCausalSTDP {
		t.Fatalf("unexpected rule: %s", rule.Name())
	}

	cfg.Rule = "frozen"
	rule, err = NewRule(cfg)
	if err != nil {
		t.Fatalf("new frozen rule: %v", err)
	}
	w := NewWeights(2)
	w.Set(0, 0, 0.5)
	w.Set(0, 1, 5)
	rule.Apply(w, []float64{1, 1}, []float64{1, 1}, []bool{true, true}, []bool{true, true}, 1)
	if w.At(0, 0) != 0 || w.At(0, 1) != cfg.WMax {
		t.Fatalf("frozen rule must only enforce bounds: %v", w.Raw())
	}

	cfg.Rule = "missing"
	if _, err := NewRule(cfg); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestListRules(t *testing.T) {
	resetRuleRegistryForTests()
	t.Cleanup(resetRuleRegistryForTests)

	want := []string{PlasticityCausalSTDP, PlasticityNone}
	if got := ListRules(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rules: got=%v want=%v", got, want)
	}
}
