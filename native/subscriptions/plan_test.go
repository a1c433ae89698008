package subscriptions

import (
	"errors"
	"strings"
	"testing"
)

func TestCreatePlanValidation(t *testing.T) {
	h := newHarness(t)
	base := CreatePlanParams{
		Payee:         h.payee,
		TermsID:       "monthly",
		Price:         5_000_000,
		PeriodSeconds: thirtyDays,
		GraceSeconds:  86_400,
		Name:          "Monthly",
	}
	cases := []struct {
		name   string
		mutate func(p *CreatePlanParams)
		want   error
	}{
		{"zero price", func(p *CreatePlanParams) { p.Price = 0 }, ErrInvalidPlan},
		{"price above cap", func(p *CreatePlanParams) { p.Price = MaxPlanPrice + 1 }, ErrInvalidPlan},
		{"period below minimum", func(p *CreatePlanParams) { p.PeriodSeconds = 0 }, ErrInvalidPlan},
		{"grace above 30 percent", func(p *CreatePlanParams) { p.GraceSeconds = thirtyDays*3/10 + 1 }, ErrInvalidPlan},
		{"negative grace", func(p *CreatePlanParams) { p.GraceSeconds = -1 }, ErrInvalidPlan},
		{"empty terms id", func(p *CreatePlanParams) { p.TermsID = "" }, ErrInvalidPlan},
		{"long terms id", func(p *CreatePlanParams) { p.TermsID = strings.Repeat("x", 33) }, ErrInvalidPlan},
		{"empty name", func(p *CreatePlanParams) { p.Name = "" }, ErrInvalidPlan},
		{"long name", func(p *CreatePlanParams) { p.Name = strings.Repeat("n", 33) }, ErrInvalidPlan},
	}
	for _, tc := range cases {
		params := base
		tc.mutate(&params)
		if _, err := h.eng.CreatePlan(h.payeeAuth, params); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := h.eng.CreatePlan(h.subscriber, base); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	addr, err := h.eng.CreatePlan(h.payeeAuth, base)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := h.eng.CreatePlan(h.payeeAuth, base); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	expected, _, err := PlanAddress(h.payee, "monthly")
	if err != nil || expected != addr {
		t.Fatalf("plan address not derived from payee and terms id")
	}
	plan, err := h.eng.Plan(addr)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	if !plan.Active || plan.Price != base.Price || plan.Name != base.Name {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestCreatePlanHonoursConfigCeilings(t *testing.T) {
	h := newHarness(t)
	minPeriod := int64(86_400)
	maxGrace := int64(3_600)
	if _, err := h.eng.UpdateConfig(h.platform, UpdateConfigParams{MinPeriodSeconds: &minPeriod, MaxGraceSeconds: &maxGrace}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	params := CreatePlanParams{Payee: h.payee, TermsID: "t", Price: 1, PeriodSeconds: 86_399, Name: "n"}
	if _, err := h.eng.CreatePlan(h.payeeAuth, params); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan below min period, got %v", err)
	}
	params.PeriodSeconds = thirtyDays
	params.GraceSeconds = 3_601
	if _, err := h.eng.CreatePlan(h.payeeAuth, params); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan above max grace, got %v", err)
	}
	h.must(h.eng.Pause(h.platform))
	params.GraceSeconds = 0
	if _, err := h.eng.CreatePlan(h.payeeAuth, params); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}

func TestUpdatePlan(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("basic", 10, thirtyDays, 0)

	if _, err := h.eng.UpdatePlan(h.payeeAuth, UpdatePlanParams{Plan: plan}); !errors.Is(err, ErrNoUpdatesSpecified) {
		t.Fatalf("expected ErrNoUpdatesSpecified, got %v", err)
	}
	price := uint64(20)
	if _, err := h.eng.UpdatePlan(h.platform, UpdatePlanParams{Plan: plan, Price: &price}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("platform authority must not edit terms: %v", err)
	}
	zero := uint64(0)
	if _, err := h.eng.UpdatePlan(h.payeeAuth, UpdatePlanParams{Plan: plan, Price: &zero}); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	name := "Renamed"
	updated, err := h.eng.UpdatePlan(h.payeeAuth, UpdatePlanParams{Plan: plan, Price: &price, Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 20 || updated.Name != "Renamed" || updated.PeriodSeconds != thirtyDays {
		t.Fatalf("unexpected plan: %+v", updated)
	}
	stored, _ := h.eng.Plan(plan)
	if stored.Price != 20 {
		t.Fatalf("update not persisted")
	}
}

func TestSetPlanStatusAuthorization(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("basic", 10, thirtyDays, 0)
	if err := h.eng.SetPlanStatus(h.subscriber, SetPlanStatusParams{Plan: plan}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.eng.SetPlanStatus(h.platform, SetPlanStatusParams{Plan: plan}); err != nil {
		t.Fatalf("platform deactivate: %v", err)
	}
	stored, _ := h.eng.Plan(plan)
	if stored.Active {
		t.Fatalf("plan still active")
	}
}
