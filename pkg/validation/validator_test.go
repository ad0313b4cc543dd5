package validation

import (
	"strings"
	"testing"
)

type poolSection struct {
	Kind    string `validate:"oneof=local cluster"`
	Workers int    `validate:"gte=0"`
	URL     string `validate:"omitempty,url"`
}

type engineSection struct {
	Name string `validate:"required"`
	Pool poolSection
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		value  engineSection
		errors []string
	}{
		{
			name:  "valid",
			value: engineSection{Name: "calc", Pool: poolSection{Kind: "local"}},
		},
		{
			name:   "every violation is reported",
			value:  engineSection{Pool: poolSection{Kind: "remote", Workers: -1, URL: "not a url"}},
			errors: []string{"Name: field is required", "Kind: must be one of", "Workers: must be at least 0", "URL: must be a url"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Struct(tt.value)
			if len(errs) != len(tt.errors) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.errors), len(errs), errs)
			}
			for i, want := range tt.errors {
				if !strings.Contains(errs[i].Error(), want) {
					t.Errorf("error %d = %q, want it to contain %q", i, errs[i], want)
				}
			}
		})
	}
}

func TestStructRejectsNonStruct(t *testing.T) {
	if errs := Struct(42); len(errs) != 1 {
		t.Errorf("expected one error for a non-struct, got %v", errs)
	}
}
