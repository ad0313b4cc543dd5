// Package graphql exposes jobs and stored results through a read-only
// GraphQL schema.
package graphql

import (
	"errors"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/jobstore"
	"github.com/dd0wney/cluso-hazard/pkg/resultstore"
)

// ResultReader is the read side of the result store
type ResultReader interface {
	Load(calcID string) (*aggregate.AggregateResult, error)
	Realizations(calcID string) ([]resultstore.RealizationInfo, error)
	Curve(calcID string, ordinal, siteID int) ([]float64, error)
	List() ([]string, error)
}

// curve is the value resolved for a curve query
type curve struct {
	CalculationID string
	Realization   int
	Site          int
	PoEs          []float64
}

var jobType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Job",
	Fields: graphql.Fields{
		"id":              jobField(graphql.NewNonNull(graphql.ID), func(j *jobstore.Job) any { return j.ID }),
		"description":     jobField(graphql.String, func(j *jobstore.Job) any { return j.Description }),
		"mode":            jobField(graphql.String, func(j *jobstore.Job) any { return j.Mode }),
		"status":          jobField(graphql.String, func(j *jobstore.Job) any { return string(j.Status) }),
		"numTasks":        jobField(graphql.Int, func(j *jobstore.Job) any { return j.NumTasks }),
		"numRealizations": jobField(graphql.Int, func(j *jobstore.Job) any { return j.NumRealizations }),
		"digest":          jobField(graphql.String, func(j *jobstore.Job) any { return j.Digest }),
		"error":           jobField(graphql.String, func(j *jobstore.Job) any { return j.Error }),
		"createdAt":       jobField(graphql.String, func(j *jobstore.Job) any { return j.CreatedAt.Format(time.RFC3339Nano) }),
		"updatedAt":       jobField(graphql.String, func(j *jobstore.Job) any { return j.UpdatedAt.Format(time.RFC3339Nano) }),
	},
})

func jobField(t graphql.Output, get func(*jobstore.Job) any) *graphql.Field {
	return &graphql.Field{
		Type: t,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if job, ok := p.Source.(*jobstore.Job); ok {
				return get(job), nil
			}
			return nil, nil
		},
	}
}

var realizationType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Realization",
	Fields: graphql.Fields{
		"ordinal": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				if r, ok := p.Source.(resultstore.RealizationInfo); ok {
					return r.Ordinal, nil
				}
				return nil, nil
			},
		},
		"name": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				if r, ok := p.Source.(resultstore.RealizationInfo); ok {
					return r.Name, nil
				}
				return nil, nil
			},
		},
		"weight": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				if r, ok := p.Source.(resultstore.RealizationInfo); ok {
					return r.Weight, nil
				}
				return nil, nil
			},
		},
	},
})

var imtType = graphql.NewObject(graphql.ObjectConfig{
	Name: "IntensityMeasure",
	Fields: graphql.Fields{
		"imt": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				if l, ok := p.Source.(hazard.IMTLevels); ok {
					return l.IMT, nil
				}
				return nil, nil
			},
		},
		"levels": &graphql.Field{
			Type: graphql.NewList(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				if l, ok := p.Source.(hazard.IMTLevels); ok {
					return l.Levels, nil
				}
				return nil, nil
			},
		},
	},
})

var curveType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Curve",
	Fields: graphql.Fields{
		"calculationId": &graphql.Field{Type: graphql.ID, Resolve: curveField(func(c *curve) any { return c.CalculationID })},
		"realization":   &graphql.Field{Type: graphql.Int, Resolve: curveField(func(c *curve) any { return c.Realization })},
		"site":          &graphql.Field{Type: graphql.Int, Resolve: curveField(func(c *curve) any { return c.Site })},
		"poes":          &graphql.Field{Type: graphql.NewList(graphql.Float), Resolve: curveField(func(c *curve) any { return c.PoEs })},
	},
})

func curveField(get func(*curve) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		if c, ok := p.Source.(*curve); ok {
			return get(c), nil
		}
		return nil, nil
	}
}

var resultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Result",
	Fields: graphql.Fields{
		"calculationId":     resultField(graphql.NewNonNull(graphql.ID), func(r *aggregate.AggregateResult) any { return r.CalculationID }),
		"kind":              resultField(graphql.String, func(r *aggregate.AggregateResult) any { return string(r.Kind) }),
		"investigationTime": resultField(graphql.Float, func(r *aggregate.AggregateResult) any { return r.InvestigationTime }),
		"numTasks":          resultField(graphql.Int, func(r *aggregate.AggregateResult) any { return r.NumTasks }),
		"digest":            resultField(graphql.String, func(r *aggregate.AggregateResult) any { return r.Digest }),
		"siteIds":           resultField(graphql.NewList(graphql.Int), func(r *aggregate.AggregateResult) any { return r.SiteIDs }),
		"imts":              resultField(graphql.NewList(imtType), func(r *aggregate.AggregateResult) any { return r.IMTLs }),
		"mean": resultField(graphql.NewList(graphql.NewList(graphql.Float)), func(r *aggregate.AggregateResult) any {
			if r.Statistics == nil {
				return nil
			}
			return r.Statistics.Mean
		}),
		"realizations": resultField(graphql.NewList(realizationType), func(r *aggregate.AggregateResult) any {
			out := make([]resultstore.RealizationInfo, len(r.Realizations))
			for i, rlz := range r.Realizations {
				out[i] = resultstore.RealizationInfo{Ordinal: rlz.Ordinal, Name: rlz.Name, Weight: rlz.Weight}
			}
			return out
		}),
	},
})

func resultField(t graphql.Output, get func(*aggregate.AggregateResult) any) *graphql.Field {
	return &graphql.Field{
		Type: t,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			if res, ok := p.Source.(*aggregate.AggregateResult); ok {
				return get(res), nil
			}
			return nil, nil
		},
	}
}

// GenerateSchema builds the query schema over a job store and a result store.
// Either may be nil; its queries then resolve to errors.
func GenerateSchema(jobs jobstore.Store, results ResultReader) (graphql.Schema, error) {
	return GenerateSchemaWithLimits(jobs, results, DefaultLimitConfig())
}

// GenerateSchemaWithLimits is GenerateSchema with a bound on list sizes
func GenerateSchemaWithLimits(jobs jobstore.Store, results ResultReader, limits *LimitConfig) (graphql.Schema, error) {
	if err := ValidateLimitConfig(limits); err != nil {
		return graphql.Schema{}, err
	}
	r := &resolver{jobs: jobs, results: results, limits: limits}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"health": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return "ok", nil
				},
			},
			"job": &graphql.Field{
				Type: jobType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.job,
			},
			"jobs": &graphql.Field{
				Type: graphql.NewList(jobType),
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.jobList,
			},
			"results": &graphql.Field{
				Type:    graphql.NewList(graphql.ID),
				Resolve: r.resultIDs,
			},
			"result": &graphql.Field{
				Type: resultType,
				Args: graphql.FieldConfigArgument{
					"calculationId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.result,
			},
			"realizations": &graphql.Field{
				Type: graphql.NewList(realizationType),
				Args: graphql.FieldConfigArgument{
					"calculationId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.realizations,
			},
			"curve": &graphql.Field{
				Type: curveType,
				Args: graphql.FieldConfigArgument{
					"calculationId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"realization":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"site":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: r.curve,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

var (
	errNoJobStore    = errors.New("no job store configured")
	errNoResultStore = errors.New("no result store configured")
)
