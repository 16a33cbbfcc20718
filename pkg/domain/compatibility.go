package domain

import (
	"slices"
	"strings"
)

// CompatibilityRule declares which cylinder profiles may be filled with a gas.
// Empty Materials accepts every material; zero capacity bounds are open.
type CompatibilityRule struct {
	GasTypeID   string   `json:"gas_type_id" yaml:"gas_type_id"`
	Materials   []string `json:"materials" yaml:"materials"`
	MinCapacity float64  `json:"min_capacity_liters" yaml:"min_capacity_liters"`
	MaxCapacity float64  `json:"max_capacity_liters" yaml:"max_capacity_liters"`
}

// Accepts reports whether the rule admits the given property profile.
func (r CompatibilityRule) Accepts(p CylinderProperty) bool {
	if len(r.Materials) > 0 && !slices.ContainsFunc(r.Materials, func(m string) bool {
		return strings.EqualFold(m, p.Material)
	}) {
		return false
	}
	if r.MinCapacity > 0 && p.CapacityLiters < r.MinCapacity {
		return false
	}
	if r.MaxCapacity > 0 && p.CapacityLiters > r.MaxCapacity {
		return false
	}
	return true
}

// CompatibilityChecker decides whether a gas may be filled into a profile.
type CompatibilityChecker interface {
	Compatible(gasTypeID string, profile CylinderProperty) bool
}

// CompatibilityRules is a rule list. A gas with no rules is compatible with
// every profile; otherwise at least one rule must accept the profile.
type CompatibilityRules []CompatibilityRule

// Compatible implements CompatibilityChecker.
func (rs CompatibilityRules) Compatible(gasTypeID string, profile CylinderProperty) bool {
	governed := false
	for _, r := range rs {
		if r.GasTypeID != gasTypeID {
			continue
		}
		governed = true
		if r.Accepts(profile) {
			return true
		}
	}
	return !governed
}

// GasTypesFor lists the gas types from candidates that may be filled into profile.
func GasTypesFor(checker CompatibilityChecker, profile CylinderProperty, candidates []GasType) []GasType {
	out := make([]GasType, 0, len(candidates))
	for _, g := range candidates {
		if checker.Compatible(g.ID, profile) {
			out = append(out, g)
		}
	}
	return out
}
