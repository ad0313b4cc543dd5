package graphql

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// calculateQueryDepth calculates the maximum depth of a GraphQL query
func calculateQueryDepth(document *ast.Document) int {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, definition := range document.Definitions {
		if frag, ok := definition.(*ast.FragmentDefinition); ok {
			fragments[frag.Name.Value] = frag
		}
	}

	maxDepth := 0
	for _, definition := range document.Definitions {
		if def, ok := definition.(*ast.OperationDefinition); ok {
			depth := selectionSetDepth(def.SelectionSet, 1, fragments, map[string]bool{})
			if depth > maxDepth {
				maxDepth = depth
			}
		}
	}
	return maxDepth
}

// selectionSetDepth recursively calculates the depth of a selection set.
// Leaf fields do not add a level.
func selectionSetDepth(selectionSet *ast.SelectionSet, currentDepth int, fragments map[string]*ast.FragmentDefinition, seen map[string]bool) int {
	if selectionSet == nil || len(selectionSet.Selections) == 0 {
		return currentDepth
	}

	maxDepth := currentDepth
	for _, selection := range selectionSet.Selections {
		depth := currentDepth
		switch sel := selection.(type) {
		case *ast.Field:
			if strings.HasPrefix(sel.Name.Value, "__") || sel.SelectionSet == nil {
				continue
			}
			depth = selectionSetDepth(sel.SelectionSet, currentDepth+1, fragments, seen)
		case *ast.InlineFragment:
			depth = selectionSetDepth(sel.SelectionSet, currentDepth, fragments, seen)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := fragments[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			depth = selectionSetDepth(frag.SelectionSet, currentDepth, fragments, seen)
			delete(seen, name)
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

// ValidateQueryDepth validates a query against the depth limit
func ValidateQueryDepth(query string, maxDepth int) error {
	document, err := parser.Parse(parser.ParseParams{
		Source: query,
	})
	if err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}

	queryDepth := calculateQueryDepth(document)
	if queryDepth > maxDepth {
		return fmt.Errorf("query depth %d exceeds maximum allowed depth %d", queryDepth, maxDepth)
	}
	return nil
}

// ExecuteWithDepthLimit executes a GraphQL query with depth validation
func ExecuteWithDepthLimit(ctx context.Context, schema graphql.Schema, req Request, maxDepth int) *graphql.Result {
	if err := ValidateQueryDepth(req.Query, maxDepth); err != nil {
		return &graphql.Result{
			Errors: []gqlerrors.FormattedError{
				gqlerrors.FormatError(err),
			},
		}
	}
	return Execute(ctx, schema, req)
}
