package gmm

import (
	"errors"
	"math"
	"testing"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
)

func reference() LogLinear {
	return LogLinear{Label: "ref", A: -1, B: 0.8, C: 1.1, H: 6, Sigma: 0.6}
}

func TestPoEsDecreaseWithLevel(t *testing.T) {
	m := reference()
	levels := []float64{0.01, 0.05, 0.1, 0.5, 1, 2}
	poes := m.PoEs(6.5, 20, geo.Site{}, "PGA", levels, 0)

	for i := 1; i < len(poes); i++ {
		if poes[i] > poes[i-1] {
			t.Fatalf("PoEs not decreasing at %d: %v", i, poes)
		}
	}
	for _, p := range poes {
		if p < 0 || p > 1 {
			t.Fatalf("PoE out of range: %v", poes)
		}
	}
}

func TestPoEAtMedianIsHalf(t *testing.T) {
	m := reference()
	median := math.Exp(m.Mean(6, 30, geo.Site{}))
	poe := m.PoEs(6, 30, geo.Site{}, "PGA", []float64{median}, 0)[0]
	if math.Abs(poe-0.5) > 1e-9 {
		t.Errorf("PoE at median = %v, want 0.5", poe)
	}
	truncated := m.PoEs(6, 30, geo.Site{}, "PGA", []float64{median}, 3)[0]
	if math.Abs(truncated-0.5) > 1e-9 {
		t.Errorf("truncated PoE at median = %v, want 0.5", truncated)
	}
}

func TestExceedanceTruncation(t *testing.T) {
	tests := []struct {
		name       string
		x          float64
		truncation float64
		want       float64
	}{
		{"above truncation", 3.5, 3, 0},
		{"below truncation", -3.5, 3, 1},
		{"at truncation", 3, 3, 0},
		{"untruncated far tail", 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exceedance(tt.x, 0, 1, tt.truncation); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("exceedance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExceedanceZeroSigma(t *testing.T) {
	if exceedance(0, 1, 0, 0) != 1 || exceedance(2, 1, 0, 0) != 0 {
		t.Error("zero sigma must give a step function")
	}
}

func TestSiteTerm(t *testing.T) {
	m := reference()
	m.D = -0.5
	soft := m.Mean(6, 10, geo.Site{Vs30: 300})
	rock := m.Mean(6, 10, geo.Site{Vs30: 760})
	if soft <= rock {
		t.Errorf("soft site mean %v should exceed rock mean %v", soft, rock)
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(reference())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := r.Get("ref"); err != nil {
		t.Errorf("Get(ref) error = %v", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Get(nope) error = %v, want ErrUnknownModel", err)
	}
	if err := r.Register(reference()); !errors.Is(err, ErrDuplicatedModel) {
		t.Errorf("Register() duplicate error = %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "ref" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLogLinearValidate(t *testing.T) {
	if err := (LogLinear{}).Validate(); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("Validate() empty name error = %v", err)
	}
	if err := (LogLinear{Label: "x", Sigma: -1}).Validate(); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("Validate() negative sigma error = %v", err)
	}
	if err := reference().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
