package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
)

const (
	// MaxPlanPrice caps a plan at one million units of a 6-decimal medium.
	MaxPlanPrice uint64 = 1_000_000_000_000
	maxNameLength       = 32
	maxGracePercent     = 30
)

// CreatePlanParams describes new pricing terms for the caller's payee.
type CreatePlanParams struct {
	Payee         crypto.Address `json:"payee"`
	TermsID       string         `json:"termsId"`
	Price         uint64         `json:"price"`
	PeriodSeconds int64          `json:"periodSeconds"`
	GraceSeconds  int64          `json:"graceSeconds"`
	Name          string         `json:"name"`
}

// UpdatePlanParams carries optional plan changes; nil fields are left alone.
type UpdatePlanParams struct {
	Plan          crypto.Address `json:"plan"`
	Price         *uint64        `json:"price,omitempty"`
	PeriodSeconds *int64         `json:"periodSeconds,omitempty"`
	GraceSeconds  *int64         `json:"graceSeconds,omitempty"`
	Name          *string        `json:"name,omitempty"`
	Active        *bool          `json:"active,omitempty"`
}

func (p UpdatePlanParams) empty() bool {
	return p.Price == nil && p.PeriodSeconds == nil && p.GraceSeconds == nil && p.Name == nil && p.Active == nil
}

// SetPlanStatusParams toggles whether a plan accepts subscribers.
type SetPlanStatusParams struct {
	Plan   crypto.Address `json:"plan"`
	Active bool           `json:"active"`
}

func validatePlanTerms(cfg *Config, p *Plan) error {
	if p.Price == 0 || p.Price > MaxPlanPrice {
		return fmt.Errorf("%w: price %d outside (0, %d]", ErrInvalidPlan, p.Price, MaxPlanPrice)
	}
	if p.PeriodSeconds < cfg.MinPeriodSeconds {
		return fmt.Errorf("%w: period %d below minimum %d", ErrInvalidPlan, p.PeriodSeconds, cfg.MinPeriodSeconds)
	}
	if p.GraceSeconds < 0 {
		return fmt.Errorf("%w: negative grace", ErrInvalidPlan)
	}
	scaled, ok := checkedMulInt64(p.PeriodSeconds, maxGracePercent)
	if !ok {
		return ErrArithmeticOverflow
	}
	if p.GraceSeconds > scaled/100 {
		return fmt.Errorf("%w: grace %d above %d%% of period", ErrInvalidPlan, p.GraceSeconds, maxGracePercent)
	}
	if p.GraceSeconds > cfg.MaxGraceSeconds {
		return fmt.Errorf("%w: grace %d above maximum %d", ErrInvalidPlan, p.GraceSeconds, cfg.MaxGraceSeconds)
	}
	if len(p.Name) == 0 || len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1..%d bytes", ErrInvalidPlan, maxNameLength)
	}
	return nil
}

// CreatePlan registers new terms under the caller's payee. The plan address
// is derived from the payee and terms id, so a terms id can be used once.
func (e *Engine) CreatePlan(caller crypto.Address, params CreatePlanParams) (crypto.Address, error) {
	if err := e.ready(); err != nil {
		return crypto.Address{}, err
	}
	cfg, err := e.Config()
	if err != nil {
		return crypto.Address{}, err
	}
	if err := e.requireUnpaused(cfg); err != nil {
		return crypto.Address{}, err
	}
	payee, err := e.Payee(params.Payee)
	if err != nil {
		return crypto.Address{}, err
	}
	if caller != payee.Authority {
		return crypto.Address{}, ErrUnauthorized
	}
	addr, bump, err := PlanAddress(params.Payee, params.TermsID)
	if err != nil {
		return crypto.Address{}, err
	}
	plan := &Plan{
		Payee:         params.Payee,
		TermsID:       params.TermsID,
		Price:         params.Price,
		PeriodSeconds: params.PeriodSeconds,
		GraceSeconds:  params.GraceSeconds,
		Name:          params.Name,
		Active:        true,
		Bump:          bump,
	}
	if err := validatePlanTerms(cfg, plan); err != nil {
		return crypto.Address{}, err
	}
	if err := e.ensureVacant("plan", addr); err != nil {
		return crypto.Address{}, err
	}
	if err := e.putPlan(addr, plan); err != nil {
		return crypto.Address{}, err
	}
	e.emit(types.NewEvent(EventTypePlanCreated).
		With("plan", addr.String()).
		With("payee", params.Payee.String()).
		With("termsId", params.TermsID).
		With("price", fmt.Sprint(params.Price)).
		With("periodSeconds", fmt.Sprint(params.PeriodSeconds)).
		With("graceSeconds", fmt.Sprint(params.GraceSeconds)))
	return addr, nil
}

// UpdatePlan applies the supplied changes. Only the owning payee authority
// may update, and at least one field must be supplied.
func (e *Engine) UpdatePlan(caller crypto.Address, params UpdatePlanParams) (*Plan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	plan, err := e.Plan(params.Plan)
	if err != nil {
		return nil, err
	}
	payee, err := e.Payee(plan.Payee)
	if err != nil {
		return nil, err
	}
	if caller != payee.Authority {
		return nil, ErrUnauthorized
	}
	if params.empty() {
		return nil, ErrNoUpdatesSpecified
	}
	next := *plan
	if params.Price != nil {
		next.Price = *params.Price
	}
	if params.PeriodSeconds != nil {
		next.PeriodSeconds = *params.PeriodSeconds
	}
	if params.GraceSeconds != nil {
		next.GraceSeconds = *params.GraceSeconds
	}
	if params.Name != nil {
		next.Name = *params.Name
	}
	if params.Active != nil {
		next.Active = *params.Active
	}
	if err := validatePlanTerms(cfg, &next); err != nil {
		return nil, err
	}
	if err := e.putPlan(params.Plan, &next); err != nil {
		return nil, err
	}
	e.emit(types.NewEvent(EventTypePlanUpdated).
		With("plan", params.Plan.String()).
		With("price", fmt.Sprint(next.Price)).
		With("periodSeconds", fmt.Sprint(next.PeriodSeconds)).
		With("graceSeconds", fmt.Sprint(next.GraceSeconds)).
		With("active", fmt.Sprint(next.Active)))
	return &next, nil
}

// SetPlanStatus activates or deactivates a plan. The owning payee and the
// platform authority may both call it.
func (e *Engine) SetPlanStatus(caller crypto.Address, params SetPlanStatusParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	plan, err := e.Plan(params.Plan)
	if err != nil {
		return err
	}
	payee, err := e.Payee(plan.Payee)
	if err != nil {
		return err
	}
	if caller != payee.Authority && caller != cfg.Authority {
		return ErrUnauthorized
	}
	plan.Active = params.Active
	if err := e.putPlan(params.Plan, plan); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypePlanStatusChanged).
		With("plan", params.Plan.String()).
		With("active", fmt.Sprint(params.Active)).
		With("by", caller.String()))
	return nil
}
