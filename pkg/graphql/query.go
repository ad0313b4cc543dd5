package graphql

import (
	"context"

	"github.com/graphql-go/graphql"
)

// Request is one query against the results schema
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Execute runs req with resolvers seeing ctx. Only the named operation runs
// when the document holds several.
func Execute(ctx context.Context, schema graphql.Schema, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

// ExecuteQuery runs a query without variables
func ExecuteQuery(query string, schema graphql.Schema) *graphql.Result {
	return Execute(context.Background(), schema, Request{Query: query})
}

// ExecuteQueryWithVariables runs a query binding variables
func ExecuteQueryWithVariables(query string, schema graphql.Schema, variables map[string]any) *graphql.Result {
	return Execute(context.Background(), schema, Request{Query: query, Variables: variables})
}
