package testsupport

import (
	"context"
	"testing"

	"benchd/internal/config"
	"benchd/internal/store"
)

// MustOpenStore opens a record store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedEmployee registers an operator in the test store.
func SeedEmployee(t testing.TB, st *store.Store, id, cardID, name string) *store.Employee {
	t.Helper()

	emp := &store.Employee{ID: id, CardID: cardID, Name: name, Position: "assembler"}
	if err := st.UpsertEmployee(context.Background(), emp); err != nil {
		t.Fatalf("store.UpsertEmployee: %v", err)
	}
	return emp
}

// SeedUnit registers a production unit in the test store.
func SeedUnit(t testing.TB, st *store.Store, id, barcode, model string) *store.Unit {
	t.Helper()

	unit := &store.Unit{ID: id, Barcode: barcode, Model: model}
	if err := st.UpsertUnit(context.Background(), unit); err != nil {
		t.Fatalf("store.UpsertUnit: %v", err)
	}
	return unit
}
