package graphql

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-hazard/pkg/jobstore"
	"github.com/dd0wney/cluso-hazard/pkg/resultstore"
)

type resolver struct {
	jobs    jobstore.Store
	results ResultReader
	limits  *LimitConfig
}

func requestContext(p graphql.ResolveParams) context.Context {
	if p.Context != nil {
		return p.Context
	}
	return context.Background()
}

func (r *resolver) job(p graphql.ResolveParams) (any, error) {
	if r.jobs == nil {
		return nil, errNoJobStore
	}
	id, _ := p.Args["id"].(string)
	job, err := r.jobs.Get(requestContext(p), id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

func (r *resolver) jobList(p graphql.ResolveParams) (any, error) {
	if r.jobs == nil {
		return nil, errNoJobStore
	}
	jobs, err := r.jobs.List(requestContext(p))
	if err != nil {
		return nil, err
	}

	if status, ok := p.Args["status"].(string); ok && status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	limit := -1
	if l, ok := p.Args["limit"].(int); ok {
		limit = l
	}
	limit = applyLimit(limit, r.limits)
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *resolver) resultIDs(p graphql.ResolveParams) (any, error) {
	if r.results == nil {
		return nil, errNoResultStore
	}
	return r.results.List()
}

func (r *resolver) result(p graphql.ResolveParams) (any, error) {
	if r.results == nil {
		return nil, errNoResultStore
	}
	id, _ := p.Args["calculationId"].(string)
	res, err := r.results.Load(id)
	if errors.Is(err, resultstore.ErrNotFound) {
		return nil, nil
	}
	return res, err
}

func (r *resolver) realizations(p graphql.ResolveParams) (any, error) {
	if r.results == nil {
		return nil, errNoResultStore
	}
	id, _ := p.Args["calculationId"].(string)
	rlzs, err := r.results.Realizations(id)
	if errors.Is(err, resultstore.ErrNotFound) {
		return nil, nil
	}
	return rlzs, err
}

func (r *resolver) curve(p graphql.ResolveParams) (any, error) {
	if r.results == nil {
		return nil, errNoResultStore
	}
	id, _ := p.Args["calculationId"].(string)
	ordinal, _ := p.Args["realization"].(int)
	site, _ := p.Args["site"].(int)

	poes, err := r.results.Curve(id, ordinal, site)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &curve{CalculationID: id, Realization: ordinal, Site: site, PoEs: poes}, nil
}
