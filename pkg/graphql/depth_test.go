package graphql

import (
	"context"
	"testing"
)

func TestValidateQueryDepth(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		maxDepth int
		wantErr  bool
	}{
		{"leaf only", `{ health }`, 1, false},
		{"one level", `{ job(id: "x") { id status } }`, 2, false},
		{"two levels over one", `{ result(calculationId: "x") { imts { imt } } }`, 2, true},
		{"two levels", `{ result(calculationId: "x") { imts { imt } } }`, 3, false},
		{"fragment", `{ result(calculationId: "x") { ...R } } fragment R on Result { realizations { ordinal } }`, 2, true},
		{"introspection ignored", `{ __schema { types { name } } }`, 1, false},
		{"unparsable", `{ job(`, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateQueryDepth(tt.query, tt.maxDepth); (err != nil) != tt.wantErr {
				t.Errorf("ValidateQueryDepth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecuteWithDepthLimit(t *testing.T) {
	_, results, jobs := setupSchema(t)
	schema, err := GenerateSchema(jobs, results)
	if err != nil {
		t.Fatalf("GenerateSchema() error = %v", err)
	}

	query := `{ result(calculationId: "x") { imts { imt } } }`
	if result := ExecuteWithDepthLimit(context.Background(), schema, Request{Query: query}, 2); !result.HasErrors() {
		t.Error("deep query should be rejected")
	}
	if result := ExecuteWithDepthLimit(context.Background(), schema, Request{Query: query}, 3); result.HasErrors() {
		t.Errorf("query failed: %v", result.Errors)
	}
}
