package logictree

import (
	"errors"
	"testing"
)

func gmmDefinition() Definition {
	return Definition{BranchSets: []BranchSetDef{
		{
			ID:              "gs1",
			UncertaintyType: UncertaintyGMPEModel,
			TRT:             "Active Shallow Crust",
			Branches: []BranchDef{
				{ID: "g1", Value: "BooreAtkinson2008", Weight: 0.5},
				{ID: "g2", Value: "ChiouYoungs2008", Weight: 0.5},
			},
		},
		{
			ID:              "gs2",
			UncertaintyType: UncertaintyGMPEModel,
			TRT:             "Stable Continental",
			Branches: []BranchDef{
				{ID: "g3", Value: "Campbell2003", Weight: 1},
			},
		},
	}}
}

func TestCompileGMM(t *testing.T) {
	g, err := CompileGMM(gmmDefinition(), 0)
	if err != nil {
		t.Fatalf("CompileGMM() error = %v", err)
	}
	if got := g.TRTs(); len(got) != 2 || got[0] != "Active Shallow Crust" {
		t.Errorf("TRTs() = %v", got)
	}
	gmms := g.GMMs("Active Shallow Crust")
	if len(gmms) != 2 || gmms[0] != "BooreAtkinson2008" || gmms[1] != "ChiouYoungs2008" {
		t.Errorf("GMMs() = %v", gmms)
	}
	if _, ok := g.For("Subduction"); ok {
		t.Error("For() found a tree for a TRT without one and no shared tree")
	}

	filtered := g.Filter([]string{"Stable Continental"})
	if len(filtered.ByTRT) != 1 {
		t.Errorf("Filter() kept %d trees, want 1", len(filtered.ByTRT))
	}
	if _, ok := filtered.For("Active Shallow Crust"); ok {
		t.Error("Filter() kept a TRT that was not asked for")
	}
}

func TestCompileGMMShared(t *testing.T) {
	def := Definition{BranchSets: []BranchSetDef{
		{ID: "gs", Branches: []BranchDef{{ID: "g", Value: "Toro2002", Weight: 1}}},
	}}
	g, err := CompileGMM(def, 0)
	if err != nil {
		t.Fatalf("CompileGMM() error = %v", err)
	}
	tree, ok := g.For("anything")
	if !ok || tree != g.Shared {
		t.Fatal("For() should fall back to the shared tree")
	}
	if gmms := g.GMMs("anything"); len(gmms) != 1 || gmms[0] != "Toro2002" {
		t.Errorf("GMMs() = %v", gmms)
	}
}

func TestCompileGMMNested(t *testing.T) {
	def := gmmDefinition()
	def.BranchSets = append(def.BranchSets, BranchSetDef{
		ID:        "gs3",
		AppliesTo: []string{"g3"},
		Branches: []BranchDef{
			{ID: "g3a", Value: "Campbell2003SHARE", Weight: 0.5},
			{ID: "g3b", Value: "Campbell2003MwNGA", Weight: 0.5},
		},
	})
	g, err := CompileGMM(def, 0)
	if err != nil {
		t.Fatalf("CompileGMM() error = %v", err)
	}
	if gmms := g.GMMs("Stable Continental"); len(gmms) != 2 || gmms[0] != "Campbell2003SHARE" {
		t.Errorf("GMMs() = %v", gmms)
	}
}

func TestCompileGMMErrors(t *testing.T) {
	dup := gmmDefinition()
	dup.BranchSets[1].TRT = dup.BranchSets[0].TRT

	orphan := gmmDefinition()
	orphan.BranchSets = append(orphan.BranchSets, BranchSetDef{
		ID: "gs3", AppliesTo: []string{"nope"}, Branches: []BranchDef{{ID: "x", Weight: 1}},
	})

	for name, def := range map[string]Definition{"duplicated trt": dup, "orphan set": orphan, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			if _, err := CompileGMM(def, 0); !errors.Is(err, ErrMalformedTree) {
				t.Errorf("CompileGMM() error = %v, want ErrMalformedTree", err)
			}
		})
	}
}
