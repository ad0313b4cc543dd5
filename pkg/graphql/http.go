package graphql

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

const (
	// DefaultMaxDepth bounds the nesting of queries served over HTTP
	DefaultMaxDepth = 5
	maxBodyBytes    = 1 << 20
)

var errMissingQuery = errors.New("request carries no query")

// GraphQLResponse is what every request answers with
type GraphQLResponse struct {
	Data   any            `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError is one resolver or validation error
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLHandler serves the read-only results schema. Queries arrive as a
// JSON POST body or as GET query parameters.
type GraphQLHandler struct {
	schema   graphql.Schema
	maxDepth int
	logger   logging.Logger
}

// NewGraphQLHandler creates a handler for schema
func NewGraphQLHandler(schema graphql.Schema, logger logging.Logger) *GraphQLHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GraphQLHandler{
		schema:   schema,
		maxDepth: DefaultMaxDepth,
		logger:   logger.With(logging.Component("graphql")),
	}
}

// WithMaxDepth sets the query depth limit
func (h *GraphQLHandler) WithMaxDepth(depth int) *GraphQLHandler {
	h.maxDepth = depth
	return h
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	var (
		req Request
		err error
	)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		req, err = requestFromURL(r)
	case http.MethodPost:
		err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
		if err == nil && req.Query == "" {
			err = errMissingQuery
		}
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		h.logger.Debug("rejected graphql request", logging.Error(err))
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	timer := logging.StartTimer(h.logger, "graphql query")
	result := ExecuteWithDepthLimit(r.Context(), h.schema, req, h.maxDepth)
	timer.EndWithLevel(logging.DebugLevel, "graphql query served")

	resp := GraphQLResponse{Data: result.Data}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, GraphQLError{Message: e.Message, Path: e.Path})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to write response", logging.Error(err))
	}
}

// requestFromURL reads query, variables and operationName parameters
func requestFromURL(r *http.Request) (Request, error) {
	params := r.URL.Query()
	req := Request{
		Query:         params.Get("query"),
		OperationName: params.Get("operationName"),
	}
	if req.Query == "" {
		return req, errMissingQuery
	}
	if raw := params.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return req, err
		}
	}
	return req, nil
}
