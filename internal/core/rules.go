package core

import "cylindercore/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// Every rule blocks: the service enforces the same constraints before writing,
// so a violation here means a caller bypassed the service.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(CylinderInvariantRule())
	engine.Register(MovementCoverageRule())
	engine.Register(ReferenceIntegrityRule())
	return engine
}
