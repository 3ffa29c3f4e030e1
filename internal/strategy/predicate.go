// Package strategy implements the rule engine: market-selector predicates,
// strategy rules parsed from configuration, and the evaluator that turns a
// market context into order intents.
package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// Predicate decides whether a rule applies to a market in its current state.
type Predicate interface {
	Eval(m domain.Market, mc domain.MarketContext, now time.Time) bool
}

// predicate node types. Predicates are declared as a tagged JSON tree, e.g.
//
//	{"op":"all","args":[
//	  {"op":"has_tag","tag":"Crypto"},
//	  {"op":"price_in","min":0.8,"max":0.95},
//	  {"op":"time_left_at_least","d":"10m"}
//	]}
type predicateNode struct {
	Op   string            `json:"op"`
	Tag  string            `json:"tag,omitempty"`
	Min  float64           `json:"min,omitempty"`
	Max  float64           `json:"max,omitempty"`
	D    string            `json:"d,omitempty"`
	Arg  *json.RawMessage  `json:"arg,omitempty"`
	Args []json.RawMessage `json:"args,omitempty"`
}

// ParsePredicate decodes a JSON predicate document into an evaluable tree.
func ParsePredicate(doc string) (Predicate, error) {
	return parseNode([]byte(doc))
}

func parseNode(raw []byte) (Predicate, error) {
	var node predicateNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("strategy: parse predicate: %w", err)
	}

	switch node.Op {
	case "has_tag":
		if node.Tag == "" {
			return nil, fmt.Errorf("strategy: has_tag requires a tag")
		}
		return hasTag{tag: node.Tag}, nil

	case "price_in":
		if node.Min < 0 || node.Max > 1 || node.Min > node.Max {
			return nil, fmt.Errorf("strategy: price_in band [%v, %v] is invalid", node.Min, node.Max)
		}
		return priceIn{min: node.Min, max: node.Max}, nil

	case "spread_at_most":
		if node.Max <= 0 {
			return nil, fmt.Errorf("strategy: spread_at_most requires max > 0")
		}
		return spreadAtMost{max: node.Max}, nil

	case "time_left_at_least":
		d, err := time.ParseDuration(node.D)
		if err != nil {
			return nil, fmt.Errorf("strategy: time_left_at_least: %w", err)
		}
		return timeLeftAtLeast{d: d}, nil

	case "all", "any":
		if len(node.Args) == 0 {
			return nil, fmt.Errorf("strategy: %s requires at least one argument", node.Op)
		}
		children := make([]Predicate, 0, len(node.Args))
		for _, arg := range node.Args {
			child, err := parseNode(arg)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if node.Op == "all" {
			return conjunction(children), nil
		}
		return disjunction(children), nil

	case "not":
		if node.Arg == nil {
			return nil, fmt.Errorf("strategy: not requires an argument")
		}
		child, err := parseNode(*node.Arg)
		if err != nil {
			return nil, err
		}
		return negation{inner: child}, nil

	default:
		return nil, fmt.Errorf("strategy: unknown predicate op %q", node.Op)
	}
}

type hasTag struct{ tag string }

func (p hasTag) Eval(m domain.Market, _ domain.MarketContext, _ time.Time) bool {
	return m.HasTag(p.tag)
}

// priceIn matches when the mid price sits inside [min, max].
type priceIn struct{ min, max float64 }

func (p priceIn) Eval(_ domain.Market, mc domain.MarketContext, _ time.Time) bool {
	return mc.HasBook() && mc.Mid >= p.min && mc.Mid <= p.max
}

type spreadAtMost struct{ max float64 }

func (p spreadAtMost) Eval(_ domain.Market, mc domain.MarketContext, _ time.Time) bool {
	return mc.HasBook() && mc.Spread <= p.max
}

type timeLeftAtLeast struct{ d time.Duration }

func (p timeLeftAtLeast) Eval(m domain.Market, _ domain.MarketContext, now time.Time) bool {
	return !m.EndTime.IsZero() && m.EndTime.Sub(now) >= p.d
}

type conjunction []Predicate

func (p conjunction) Eval(m domain.Market, mc domain.MarketContext, now time.Time) bool {
	for _, child := range p {
		if !child.Eval(m, mc, now) {
			return false
		}
	}
	return true
}

type disjunction []Predicate

func (p disjunction) Eval(m domain.Market, mc domain.MarketContext, now time.Time) bool {
	for _, child := range p {
		if child.Eval(m, mc, now) {
			return true
		}
	}
	return false
}

type negation struct{ inner Predicate }

func (p negation) Eval(m domain.Market, mc domain.MarketContext, now time.Time) bool {
	return !p.inner.Eval(m, mc, now)
}
