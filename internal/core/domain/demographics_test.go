package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

func TestDemographicsRecord_Display(t *testing.T) {
	r := domain.DemographicsRecord{MedianIncomeUSD: 72500, MedianHomeValueUSD: 0}
	if got := r.IncomeDisplay(); got != "$72,500" {
		t.Errorf("expected $72,500, got %s", got)
	}
	if got := r.HomeValueDisplay(); got != domain.NotAvailable {
		t.Errorf("expected %q, got %s", domain.NotAvailable, got)
	}
	if r.HomeValueAvailable() {
		t.Error("zero home value must be reported as unavailable")
	}

	big := domain.DemographicsRecord{MedianHomeValueUSD: 1250000}
	if got := big.HomeValueDisplay(); got != "$1,250,000" {
		t.Errorf("expected $1,250,000, got %s", got)
	}
	small := domain.DemographicsRecord{MedianIncomeUSD: 999}
	if got := small.IncomeDisplay(); got != "$999" {
		t.Errorf("expected $999, got %s", got)
	}
}

func TestDemographicsResult_Alternatives(t *testing.T) {
	var empty domain.DemographicsResult
	if empty.IsSet() {
		t.Error("zero result must not be set")
	}

	ok := domain.DemographicsOK(domain.DemographicsRecord{Population: 10})
	if !ok.OK() || !ok.IsSet() || ok.Failure != nil {
		t.Errorf("unexpected ok result: %+v", ok)
	}

	failed := domain.DemographicsFailed(domain.FailureNoGeography, "no tract", "")
	if failed.OK() || !failed.IsSet() || failed.Record != nil {
		t.Errorf("unexpected failed result: %+v", failed)
	}
}

func TestDemographicsKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", domain.NewDemographicsError(domain.FailureMalformed, "bad json", nil))
	if k := domain.DemographicsKind(err); k != domain.FailureMalformed {
		t.Errorf("expected malformed, got %s", k)
	}
	if k := domain.DemographicsKind(errors.New("dial tcp: refused")); k != domain.FailureNetwork {
		t.Errorf("expected network default, got %s", k)
	}
	wrapped := domain.NewDemographicsError(domain.FailureNetwork, "request", context.Canceled)
	if !errors.Is(wrapped, context.Canceled) {
		t.Error("expected wrapped context.Canceled to be visible through errors.Is")
	}
}
