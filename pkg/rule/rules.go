package rule

import "fmt"

// Rules is an ordered set of creation rules.
type Rules []*Rule

// Compile compiles every rule in the set.
func (rs Rules) Compile() error {
	for i, r := range rs {
		if r == nil {
			return fmt.Errorf("creation_rules[%d]: empty rule", i)
		}

		err := r.Compile()
		if err != nil {
			return fmt.Errorf("creation_rules[%d]: %w", i, err)
		}
	}

	return nil
}

// Match returns the rules whose path pattern matches path, in their original order.
func (rs Rules) Match(path string) Rules {
	var matched Rules

	for _, r := range rs {
		if r.MatchPath(path) {
			matched = append(matched, r)
		}
	}

	return matched
}
