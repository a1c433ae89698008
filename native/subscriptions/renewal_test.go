package subscriptions

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

var boundaryPeriods = []int64{1, 86_400, 604_800, 2_592_000, 31_536_000}

func TestRenewalWindowBoundary(t *testing.T) {
	for _, period := range boundaryPeriods {
		grace := period * 3 / 10
		if grace == 0 {
			grace = 1
		}
		for _, last := range []int64{-2_000_000_000, -1, 1_700_000_000} {
			next := last + period
			if err := checkRenewalWindow(last+period-1, last, next, period, grace); !errors.Is(err, ErrNotDue) {
				t.Fatalf("period %d last %d: expected ErrNotDue one second early, got %v", period, last, err)
			}
			if err := checkRenewalWindow(last+period, last, next, period, grace); err != nil {
				t.Fatalf("period %d last %d: boundary rejected: %v", period, last, err)
			}
			if err := checkRenewalWindow(last+period+1, last, next, period, grace); err != nil {
				t.Fatalf("period %d last %d: boundary+1 rejected: %v", period, last, err)
			}
		}
	}
}

func TestRenewalWindowGraceAndOverflow(t *testing.T) {
	if err := checkRenewalWindow(111, 0, 100, 100, 10); !errors.Is(err, ErrPastGrace) {
		t.Fatalf("expected ErrPastGrace, got %v", err)
	}
	if err := checkRenewalWindow(110, 0, 100, 100, 10); err != nil {
		t.Fatalf("last grace second rejected: %v", err)
	}
	if err := checkRenewalWindow(math.MaxInt64, 0, math.MaxInt64, 1, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow for deadline, got %v", err)
	}
	if err := checkRenewalWindow(math.MaxInt64, math.MaxInt64, 10, math.MaxInt64, math.MaxInt64-10); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow for period end, got %v", err)
	}
}

func TestRenewalBoundaryThroughEngine(t *testing.T) {
	for _, period := range boundaryPeriods[1:] {
		for _, start := range []int64{-86_400_000, 1_700_000_000} {
			for _, offset := range []int64{-1, 0, 1} {
				name := fmt.Sprintf("period=%d/start=%d/offset=%d", period, start, offset)
				t.Run(name, func(t *testing.T) {
					h := newHarness(t)
					h.now = start
					plan := h.createPlan("p", 10, period, period*3/10)
					h.approve(plan, 1_000)
					if _, err := h.start(plan); err != nil {
						t.Fatalf("start: %v", err)
					}
					h.now = start + period + offset
					_, err := h.renew(plan)
					if offset < 0 {
						if !errors.Is(err, ErrNotDue) {
							t.Fatalf("expected ErrNotDue, got %v", err)
						}
						if h.stored(plan).Renewals != 0 {
							t.Fatalf("rejected renewal counted")
						}
						return
					}
					if err != nil {
						t.Fatalf("renew: %v", err)
					}
					sub := h.stored(plan)
					if sub.Renewals != 1 || sub.LastRenewedAt != h.now || sub.NextRenewalAt != h.now+period {
						t.Fatalf("unexpected bookkeeping: %+v", sub)
					}
				})
			}
		}
	}
}

func TestRenewalSplitsKeeperPlatformAndPayee(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("pro", 1_000_000, thirtyDays, 0)
	h.approve(plan, 3_000_000)
	if _, err := h.start(plan); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.now += thirtyDays
	if _, err := h.renew(plan); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if got := h.holding(h.keeperAccount).Amount; got != 1_500 {
		t.Fatalf("keeper fee = %d, want 1500", got)
	}
	if got := h.holding(h.platformTreasury).Amount; got != 2_500+2_496 {
		t.Fatalf("platform fees = %d, want 4996", got)
	}
	if got := h.holding(h.payeeTreasury).Amount; got != 997_500+996_004 {
		t.Fatalf("payee total = %d, want 1993504", got)
	}
	evt := h.events.ofType(EventTypeRenewed)[0]
	if evt.Attributes["keeperFee"] != "1500" || evt.Attributes["keeper"] != h.keeper.String() {
		t.Fatalf("unexpected renewed event: %+v", evt.Attributes)
	}
}

func TestRenewalAllowanceWarningsAndFailures(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("basic", 10, thirtyDays, 0)
	h.approve(plan, 30)
	if _, err := h.start(plan); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.now += thirtyDays
	if _, err := h.renew(plan); err != nil {
		t.Fatalf("first renewal: %v", err)
	}
	if n := len(h.events.ofType(EventTypeLowAllowanceWarning)); n != 0 {
		t.Fatalf("warning raised with two periods of allowance")
	}

	h.now += thirtyDays
	if _, err := h.renew(plan); err != nil {
		t.Fatalf("second renewal: %v", err)
	}
	warnings := h.events.ofType(EventTypeLowAllowanceWarning)
	if len(warnings) != 1 || warnings[0].Attributes["currentAllowance"] != "10" {
		t.Fatalf("expected one low allowance warning, got %+v", warnings)
	}

	h.now += thirtyDays
	if _, err := h.renew(plan); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized once the approval is exhausted, got %v", err)
	}
	mismatch := h.events.ofType(EventTypeDelegateMismatchWarning)
	if len(mismatch) != 1 || mismatch[0].Attributes["actualDelegate"] != "none" {
		t.Fatalf("expected delegate mismatch warning, got %+v", mismatch)
	}

	h.approve(plan, 5)
	if _, err := h.renew(plan); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestRenewalGuards(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("basic", 1_000_000, thirtyDays, 3_600)
	h.approve(plan, 10_000_000)
	if _, err := h.start(plan); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.now += thirtyDays

	params := h.renewParams(plan)
	params.KeeperAccount = h.payment
	if _, err := h.eng.RenewSubscription(h.keeper, params); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign keeper account, got %v", err)
	}
	params = h.renewParams(plan)
	params.PayeeTreasury = h.platformTreasury
	if _, err := h.eng.RenewSubscription(h.keeper, params); !errors.Is(err, ErrBadDerivation) {
		t.Fatalf("expected ErrBadDerivation for substituted payee treasury, got %v", err)
	}

	h.must(h.eng.Pause(h.platform))
	if _, err := h.renew(plan); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	h.must(h.eng.Unpause(h.platform))

	newAuthority := newTestAddress(0xB9)
	h.must(h.eng.TransferAuthority(h.platform, newAuthority))
	h.must(h.eng.AcceptAuthority(newAuthority))
	if _, err := h.renew(plan); !errors.Is(err, ErrBadDerivation) {
		t.Fatalf("expected ErrBadDerivation for stale platform treasury, got %v", err)
	}
	params = h.renewParams(plan)
	params.PlatformTreasury = h.ata(newAuthority)
	if _, err := h.eng.RenewSubscription(h.keeper, params); err != nil {
		t.Fatalf("renew with rotated treasury: %v", err)
	}

	h.now += thirtyDays + 3_601
	if _, err := h.renew(plan); !errors.Is(err, ErrPastGrace) {
		t.Fatalf("expected ErrPastGrace, got %v", err)
	}

	if err := h.cancel(plan); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.renew(plan); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestRenewalContinuesForDeactivatedPlan(t *testing.T) {
	h := newHarness(t)
	plan := h.createPlan("legacy", 10, thirtyDays, 0)
	h.approve(plan, 1_000)
	if _, err := h.start(plan); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.must(h.eng.SetPlanStatus(h.payeeAuth, SetPlanStatusParams{Plan: plan, Active: false}))
	h.now += thirtyDays
	if _, err := h.renew(plan); err != nil {
		t.Fatalf("existing subscriber blocked by plan deactivation: %v", err)
	}
}

func TestDue(t *testing.T) {
	plan := &Plan{PeriodSeconds: 100, GraceSeconds: 10}
	sub := &Subscription{Active: true, LastRenewedAt: 0, NextRenewalAt: 100}
	if Due(sub, plan, 99) {
		t.Fatalf("due before boundary")
	}
	if !Due(sub, plan, 100) || !Due(sub, plan, 110) {
		t.Fatalf("not due inside window")
	}
	if Due(sub, plan, 111) {
		t.Fatalf("due after grace")
	}
	sub.Active = false
	if Due(sub, plan, 100) {
		t.Fatalf("inactive subscription reported due")
	}
}

func TestRenewalWithoutGraceOnlyAtExactBoundary(t *testing.T) {
	if err := checkRenewalWindow(100, 0, 100, 100, 0); err != nil {
		t.Fatalf("exact boundary rejected with zero grace: %v", err)
	}
	if err := checkRenewalWindow(101, 0, 100, 100, 0); !errors.Is(err, ErrPastGrace) {
		t.Fatalf("expected ErrPastGrace one second late, got %v", err)
	}

	for _, offset := range []int64{0, 1} {
		t.Run(fmt.Sprintf("offset=%d", offset), func(t *testing.T) {
			h := newHarness(t)
			plan := h.createPlan("strict", 10, thirtyDays, 0)
			h.approve(plan, 1_000)
			if _, err := h.start(plan); err != nil {
				t.Fatalf("start: %v", err)
			}
			started := h.now
			h.now = started + thirtyDays + offset
			_, err := h.renew(plan)
			if offset == 0 {
				if err != nil {
					t.Fatalf("renew at boundary: %v", err)
				}
				if sub := h.stored(plan); sub.Renewals != 1 || sub.NextRenewalAt != h.now+thirtyDays {
					t.Fatalf("unexpected bookkeeping: %+v", sub)
				}
				return
			}
			if !errors.Is(err, ErrPastGrace) {
				t.Fatalf("expected ErrPastGrace, got %v", err)
			}
			if sub := h.stored(plan); sub.Renewals != 0 || sub.NextRenewalAt != started+thirtyDays {
				t.Fatalf("rejected renewal changed bookkeeping: %+v", sub)
			}
		})
	}
}
