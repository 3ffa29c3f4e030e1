package strategy

import (
	"fmt"

	"github.com/hunterlabs/polyhunter/internal/config"
)

// Rule is one parsed strategy rule. A rule fires when its predicate matches
// and the entry price falls inside [EnterMin, EnterMax].
type Rule struct {
	Strategy   string
	Predicate  Predicate
	EnterMin   float64
	EnterMax   float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	Slippage   float64
}

// Strategy is a named set of rules.
type Strategy struct {
	Name  string
	Rules []Rule
}

// FromConfig parses the configured strategies, compiling each rule's
// predicate document. Configuration errors surface at startup.
func FromConfig(configs []config.StrategyConfig) ([]Strategy, error) {
	strategies := make([]Strategy, 0, len(configs))
	for _, sc := range configs {
		s := Strategy{Name: sc.Name}
		for i, rc := range sc.Rules {
			pred, err := ParsePredicate(rc.Predicate)
			if err != nil {
				return nil, fmt.Errorf("strategy %s rule %d: %w", sc.Name, i, err)
			}
			s.Rules = append(s.Rules, Rule{
				Strategy:   sc.Name,
				Predicate:  pred,
				EnterMin:   rc.EnterMin,
				EnterMax:   rc.EnterMax,
				Size:       rc.Size,
				StopLoss:   rc.StopLoss,
				TakeProfit: rc.TakeProfit,
				Slippage:   rc.Slippage,
			})
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
