package store_test

import (
	"context"
	"testing"

	"benchd/internal/store"
	"benchd/internal/testsupport"
)

func TestModelRequirementUpsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.SetModelRequirement(ctx, &store.StageRequirement{Model: "widget-mk2", Stage: "inspection"}); err != nil {
		t.Fatalf("SetModelRequirement failed: %v", err)
	}
	if err := st.SetModelRequirement(ctx, &store.StageRequirement{Model: "widget-mk2", Stage: "assembly", RequiresMedia: true}); err != nil {
		t.Fatalf("SetModelRequirement failed: %v", err)
	}

	reqs, err := st.ModelRequirements(ctx, "widget-mk2")
	if err != nil {
		t.Fatalf("ModelRequirements failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requirements = %d, want 2", len(reqs))
	}
	if reqs[0].Stage != "assembly" || !reqs[0].RequiresMedia {
		t.Fatalf("unexpected first requirement: %+v", reqs[0])
	}

	// Re-registering a stage updates it in place.
	if err := st.SetModelRequirement(ctx, &store.StageRequirement{Model: "widget-mk2", Stage: "assembly"}); err != nil {
		t.Fatalf("SetModelRequirement failed: %v", err)
	}
	reqs, err = st.ModelRequirements(ctx, "widget-mk2")
	if err != nil {
		t.Fatalf("ModelRequirements failed: %v", err)
	}
	if len(reqs) != 2 || reqs[0].RequiresMedia {
		t.Fatalf("upsert did not replace the row: %+v", reqs)
	}

	other, err := st.ModelRequirements(ctx, "unknown-model")
	if err != nil {
		t.Fatalf("ModelRequirements failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unknown model should have no requirements, got %+v", other)
	}

	if err := st.SetModelRequirement(ctx, &store.StageRequirement{Model: "", Stage: "x"}); err == nil {
		t.Fatal("expected error for empty model")
	}
}
