package store_test

import (
	"context"
	"errors"
	"testing"

	"benchd/internal/store"
	"benchd/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	emp := testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")

	fetched, err := st.EmployeeByCard(ctx, "card-1")
	if err != nil {
		t.Fatalf("EmployeeByCard failed: %v", err)
	}
	if fetched == nil || fetched.ID != emp.ID || fetched.Name != "Alex" {
		t.Fatalf("unexpected employee: %#v", fetched)
	}

	unknown, err := st.EmployeeByCard(ctx, "card-unknown")
	if err != nil {
		t.Fatalf("EmployeeByCard failed: %v", err)
	}
	if unknown != nil {
		t.Fatalf("expected nil for unknown card, got %#v", unknown)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	testsupport.SeedUnit(t, first, "U1", "barcode-1", "sensor")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	unit, err := second.UnitByBarcode(context.Background(), "barcode-1")
	if err != nil {
		t.Fatalf("UnitByBarcode failed: %v", err)
	}
	if unit == nil || unit.ID != "U1" || unit.Model != "sensor" {
		t.Fatalf("unexpected unit after reopen: %#v", unit)
	}
}

func TestUpsertEmployeeUpdatesFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	if err := st.UpsertEmployee(ctx, &store.Employee{ID: "E1", CardID: "card-2", Name: "Alex B"}); err != nil {
		t.Fatalf("UpsertEmployee failed: %v", err)
	}

	byOld, err := st.EmployeeByCard(ctx, "card-1")
	if err != nil {
		t.Fatalf("EmployeeByCard failed: %v", err)
	}
	if byOld != nil {
		t.Fatalf("old card should no longer resolve, got %#v", byOld)
	}
	byNew, err := st.EmployeeByCard(ctx, "card-2")
	if err != nil {
		t.Fatalf("EmployeeByCard failed: %v", err)
	}
	if byNew == nil || byNew.Name != "Alex B" {
		t.Fatalf("unexpected employee: %#v", byNew)
	}
}

func TestClaimUnitExclusivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedUnit(t, st, "U1", "barcode-1", "sensor")

	if err := st.ClaimUnit(ctx, "U1", "session-a"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := st.ClaimUnit(ctx, "U1", "session-b"); !errors.Is(err, store.ErrUnitBusy) {
		t.Fatalf("expected ErrUnitBusy, got %v", err)
	}

	if err := st.ReleaseUnit(ctx, "U1", "session-b"); err != nil {
		t.Fatalf("foreign release failed: %v", err)
	}
	if err := st.ClaimUnit(ctx, "U1", "session-b"); !errors.Is(err, store.ErrUnitBusy) {
		t.Fatal("foreign release must not drop the claim")
	}

	if err := st.ReleaseUnit(ctx, "U1", "session-a"); err != nil {
		t.Fatalf("ReleaseUnit failed: %v", err)
	}
	if err := st.ClaimUnit(ctx, "U1", "session-b"); err != nil {
		t.Fatalf("claim after release failed: %v", err)
	}
}

func TestFinalizeUnitBlocksFutureClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedUnit(t, st, "U1", "barcode-1", "sensor")

	if err := st.ClaimUnit(ctx, "U1", "session-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := st.FinalizeUnit(ctx, "U1", "session-a"); err != nil {
		t.Fatalf("FinalizeUnit failed: %v", err)
	}
	if err := st.ClaimUnit(ctx, "U1", "session-b"); !errors.Is(err, store.ErrUnitFinalized) {
		t.Fatalf("expected ErrUnitFinalized, got %v", err)
	}
}
