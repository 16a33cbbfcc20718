package core

import (
	"context"
	"errors"
	"time"

	"cylindercore/internal/infra/persistence/memory"
	"cylindercore/pkg/domain"
)

// Service exposes the transactional cylinder lifecycle operations.
type Service struct {
	store      domain.PersistentStore
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	activity   ActivityRecorder
	authorizer Authorizer
	catalog    domain.CompatibilityChecker
	archive    ReportArchive
}

type nowSetter interface {
	SetNowFunc(func() time.Time)
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if setter, ok := store.(nowSetter); ok {
		setter.SetNowFunc(o.clock.Now)
	}
	return &Service{
		store:      store,
		logger:     o.logger,
		clock:      o.clock,
		metrics:    o.metrics,
		tracer:     o.tracer,
		activity:   o.activity,
		authorizer: o.authorizer,
		catalog:    o.catalog,
		archive:    o.archive,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs the default rules.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

var operations = map[string]operationMeta{
	"create_warehouse":              {domain.EntityWarehouse, domain.ActionCreate},
	"create_customer":               {domain.EntityCustomer, domain.ActionCreate},
	"create_gas_type":               {domain.EntityGasType, domain.ActionCreate},
	"create_property":               {domain.EntityProperty, domain.ActionCreate},
	"create_product":                {domain.EntityProduct, domain.ActionCreate},
	"create_supplier":               {domain.EntitySupplier, domain.ActionCreate},
	"create_driver":                 {domain.EntityDriver, domain.ActionCreate},
	"register_cylinder":             {domain.EntityCylinder, domain.ActionCreate},
	"apply_transition":              {domain.EntityCylinder, domain.ActionUpdate},
	"commit_loan_addition":          {domain.EntityLoanAdjustment, domain.ActionCreate},
	"commit_loan_removal":           {domain.EntityLoanAdjustment, domain.ActionCreate},
	"commit_loan_transfer":          {domain.EntityLoanAdjustment, domain.ActionCreate},
	"open_audit_session":            {domain.EntityAuditSession, domain.ActionCreate},
	"start_audit_session":           {domain.EntityAuditSession, domain.ActionUpdate},
	"submit_audit_scan":             {domain.EntityAuditSession, domain.ActionUpdate},
	"complete_audit_session":        {domain.EntityAuditSession, domain.ActionUpdate},
	"submit_gas_conversion":         {domain.EntityConversion, domain.ActionCreate},
	"approve_conversion":            {domain.EntityConversion, domain.ActionUpdate},
	"reject_conversion":             {domain.EntityConversion, domain.ActionUpdate},
	"reassign_conversion_warehouse": {domain.EntityConversion, domain.ActionUpdate},
	"record_conversion_completion":  {domain.EntityConversion, domain.ActionUpdate},
	"submit_refill_order":           {domain.EntityRefillOrder, domain.ActionCreate},
	"confirm_refill_dispatch":       {domain.EntityRefillOrder, domain.ActionUpdate},
	"dispatch_refill_order":         {domain.EntityRefillOrder, domain.ActionUpdate},
	"receive_refill_items":          {domain.EntityRefillOrder, domain.ActionUpdate},
	"cancel_refill_order":           {domain.EntityRefillOrder, domain.ActionUpdate},
}

// Operations lists the mutating operation names understood by Authorizer
// implementations.
func Operations() []string {
	out := make([]string, 0, len(operations))
	for op := range operations {
		out = append(out, op)
	}
	return out
}

// run executes fn inside a store transaction after authorizing actor for op.
// fn returns the id of the primary entity it touched.
func (s *Service) run(ctx context.Context, op string, actor Actor, fn func(tx domain.Transaction) (string, error)) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()

	var (
		entityID string
		res      domain.Result
		err      error
	)
	switch {
	case actor.ID == "":
		err = domain.ValidationError{Field: "actor", Message: "actor id is required"}
	default:
		err = s.authorizer.Authorize(ctx, actor, op)
	}
	if err == nil {
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			id, err := fn(tx)
			entityID = id
			return err
		})
	}

	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordActivity(ctx, op, actor, entityID, duration, err)
	s.logViolations(op, res)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "actor", actor.ID, "entity_id", entityID, "error", err)
		return res, err
	}
	s.logger.Debug("operation completed", "operation", op, "actor", actor.ID, "entity_id", entityID, "duration", duration)
	return res, nil
}

func (s *Service) recordActivity(ctx context.Context, op string, actor Actor, entityID string, duration time.Duration, err error) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	entry := ActivityEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		ActorID:   actor.ID,
		Status:    ActivityStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = ActivityStatusError
		entry.Error = err.Error()
	}
	s.activity.Record(ctx, entry)
}

func (s *Service) logViolations(op string, res domain.Result) {
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityBlock:
			s.logger.Warn("rule blocked operation", "operation", op, "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		case domain.SeverityWarn:
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		default:
			s.logger.Info("rule note", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
}

// query runs a read-only function against a consistent view.
func query[T any](ctx context.Context, s *Service, fn func(v domain.TransactionView) (T, error)) (T, error) {
	var out T
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = fn(v)
		return err
	})
	return out, err
}

// IsRuleViolation reports whether err came from a blocking rule.
func IsRuleViolation(err error) bool {
	var rv domain.RuleViolationError
	return errors.As(err, &rv)
}
