// Package calc runs a hazard calculation end to end: it compiles the logic
// trees, associates realizations, prepares and dispatches tasks, aggregates
// their results and derives statistics, recording the job lifecycle as it
// goes.
package calc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/codec"
	"github.com/dd0wney/cluso-hazard/pkg/config"
	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/gmm"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/jobstore"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/logictree"
	"github.com/dd0wney/cluso-hazard/pkg/metrics"
	"github.com/dd0wney/cluso-hazard/pkg/monitor"
	"github.com/dd0wney/cluso-hazard/pkg/parallel"
	"github.com/dd0wney/cluso-hazard/pkg/realization"
	"github.com/dd0wney/cluso-hazard/pkg/scheduler"
	"github.com/dd0wney/cluso-hazard/pkg/source"
	"github.com/dd0wney/cluso-hazard/pkg/sourcemgr"
	"github.com/dd0wney/cluso-hazard/pkg/stats"
	"github.com/dd0wney/cluso-hazard/pkg/telemetry"
)

// Inputs is the already-parsed input boundary of one calculation
type Inputs struct {
	Description     string
	Sites           *geo.SiteCollection
	SourceModels    []source.ModelInput
	SourceModelTree logictree.Definition
	GMMTree         logictree.Definition
	Registry        *gmm.Registry
}

// PoolFactory opens the pool the tasks of one calculation run on
type PoolFactory func(calcID string, handler parallel.Handler) (parallel.Pool, error)

// ResultSaver persists a frozen result
type ResultSaver interface {
	Save(res *aggregate.AggregateResult) error
}

// Exporter publishes a frozen result
type Exporter interface {
	Export(ctx context.Context, res *aggregate.AggregateResult) ([]string, error)
}

// Options wires a Calculator. Only Config is required.
type Options struct {
	Config   *config.Config
	Pools    PoolFactory // default: a LocalPool of Config.Pool.Workers goroutines
	Jobs     jobstore.Store
	Results  ResultSaver
	Exporter Exporter
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Calculator runs calculations with one configuration
type Calculator struct {
	cfg      *config.Config
	pools    PoolFactory
	jobs     jobstore.Store
	results  ResultSaver
	exporter Exporter
	logger   logging.Logger
	metrics  *metrics.Registry
}

// New creates a calculator; the configuration must be valid
func New(opts Options) (*Calculator, error) {
	if opts.Config == nil {
		return nil, errors.New("calculator needs a configuration")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	c := &Calculator{
		cfg:      opts.Config,
		pools:    opts.Pools,
		jobs:     opts.Jobs,
		results:  opts.Results,
		exporter: opts.Exporter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.pools == nil {
		workers := c.cfg.Pool.Workers
		c.pools = func(_ string, handler parallel.Handler) (parallel.Pool, error) {
			return parallel.NewLocalPool(workers, handler, c.logger)
		}
	}
	if c.jobs == nil {
		c.jobs = jobstore.NewMemoryStore()
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry()
	}
	return c, nil
}

// Jobs returns the job store the calculator records to
func (c *Calculator) Jobs() jobstore.Store {
	return c.jobs
}

// execution is the state of one Run
type execution struct {
	c     *Calculator
	calc  config.CalculationConfig
	in    Inputs
	job   *jobstore.Job
	mon   *monitor.Monitor
	store *source.Store
	smLT  *logictree.Tree
	gmmLT *logictree.GMMLogicTree
	assoc *realization.RlzsAssoc
	specs []scheduler.TaskSpec
	agg   *aggregate.Aggregator
	res   *aggregate.AggregateResult
}

// Run executes one calculation. It returns the frozen result, or a
// *CalculationError and no result.
func (c *Calculator) Run(ctx context.Context, in Inputs) (*aggregate.AggregateResult, error) {
	job := jobstore.NewJob(in.Description, c.cfg.Calculation.Mode)
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, &CalculationError{CalculationID: job.ID, Stage: StageValidate, Entity: "job", Err: err}
	}

	e := &execution{
		c:    c,
		calc: c.cfg.Calculation,
		in:   in,
		job:  job,
		mon:  monitor.New(job.ID, c.logger.With(logging.Component("calc")), c.metrics),
	}
	logger := e.mon.Logger()

	ctx, span := telemetry.StartSpan(ctx, "calculation",
		attribute.String("calc_id", job.ID),
		attribute.String("mode", c.cfg.Calculation.Mode))
	start := time.Now()
	c.metrics.CalculationStarted()
	logger.Info("calculation started", logging.String("mode", c.cfg.Calculation.Mode), logging.String("description", in.Description))

	err := c.jobs.UpdateStatus(ctx, job.ID, jobstore.Update{Status: jobstore.StatusExecuting})
	if err != nil {
		err = &CalculationError{CalculationID: job.ID, Stage: StageValidate, Entity: "job", Err: err}
	} else {
		err = e.run(ctx)
	}

	status := jobstore.StatusComplete
	update := jobstore.Update{Status: status}
	if err != nil {
		status = jobstore.StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = jobstore.StatusAborted
		}
		update = jobstore.Update{Status: status, Error: err.Error()}
	} else {
		update.Digest = e.res.Digest
	}
	// the job is closed even when ctx was cancelled
	if uerr := c.jobs.UpdateStatus(context.WithoutCancel(ctx), job.ID, update); uerr != nil {
		logger.Error("failed to record job status", logging.Error(uerr), logging.String("status", string(status)))
	}
	c.metrics.RecordCalculation(c.cfg.Calculation.Mode, string(status), time.Since(start))
	e.mon.Flush()
	telemetry.End(span, err)

	if err != nil {
		logger.Error("calculation failed", logging.Error(err), logging.String("status", string(status)))
		return nil, err
	}
	logger.Info("calculation complete",
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("realizations", len(e.res.Realizations)),
		logging.String("digest", e.res.Digest))
	return e.res, nil
}

func (e *execution) run(ctx context.Context) error {
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StageValidate, e.validate},
		{StageSampling, e.sampling},
		{StageAssociation, e.association},
		{StageFiltering, e.filtering},
		{StageExecution, e.execute},
		{StageAggregation, e.aggregation},
		{StageStatistics, e.statistics},
		{StagePersist, e.persist},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return e.fail(st.name, "", err)
		}
		sctx, span := telemetry.StartSpan(ctx, "stage "+st.name, attribute.String("calc_id", e.job.ID))
		m := e.mon.Start(st.name)
		err := st.fn(sctx)
		elapsed := m.Stop(0)
		e.c.metrics.RecordStage(st.name, elapsed)
		telemetry.End(span, err)
		if err != nil {
			var cerr *CalculationError
			if errors.As(err, &cerr) {
				return err
			}
			return e.fail(st.name, "", err)
		}
	}
	return nil
}

func (e *execution) fail(stage, entity string, err error) error {
	return &CalculationError{CalculationID: e.job.ID, Stage: stage, Entity: entity, Err: err}
}

func (e *execution) validate(ctx context.Context) error {
	if e.in.Sites.Len() == 0 {
		return e.fail(StageValidate, "sites", ErrNoSites)
	}
	if e.in.Registry == nil {
		return e.fail(StageValidate, "gmms", ErrNoRegistry)
	}
	store, err := source.NewStore(e.in.SourceModels)
	if err != nil {
		return e.fail(StageValidate, "source models", err)
	}
	e.store = store
	e.mon.Logger().Info("inputs validated",
		logging.Int("sites", e.in.Sites.Len()),
		logging.Int("source_models", len(store.Models())),
		logging.Int("groups", len(store.Groups())),
		logging.Int("sources", store.NumSources()))
	return nil
}

func (e *execution) sampling(ctx context.Context) error {
	tol := e.calc.WeightTolerance
	smLT, err := logictree.Compile(e.in.SourceModelTree, tol)
	if err != nil {
		return e.fail(StageSampling, "source model logic tree", err)
	}
	gmmLT, err := logictree.CompileGMM(e.in.GMMTree, tol)
	if err != nil {
		return e.fail(StageSampling, "gmpe logic tree", err)
	}
	gmmLT = gmmLT.Filter(e.store.TRTs())

	// every reachable model must be known before anything is dispatched
	for _, trt := range e.store.TRTs() {
		for _, name := range gmmLT.GMMs(trt) {
			if _, err := e.in.Registry.Get(name); err != nil {
				return e.fail(StageSampling, "gmm "+name, err)
			}
		}
	}
	e.smLT, e.gmmLT = smLT, gmmLT
	return nil
}

func (e *execution) association(ctx context.Context) error {
	assoc, err := realization.Associate(e.store, e.smLT, e.gmmLT, realization.Options{
		NumSamples: e.calc.NumSamples,
		Seed:       e.calc.RandomSeed,
		Logger:     e.mon.Logger(),
	})
	if err != nil {
		var aerr *realization.AssociationError
		entity := ""
		if errors.As(err, &aerr) {
			entity = aerr.Path
		}
		return e.fail(StageAssociation, entity, err)
	}
	e.assoc = assoc

	mode := "enumeration"
	paths := e.smLT.NumPaths()
	if assoc.Sampled() {
		mode = "sampling"
		paths = e.calc.NumSamples
	}
	e.c.metrics.RecordLogicTree(mode, paths, assoc.Len(), len(assoc.Keys()))
	e.mon.Logger().Info("realizations associated",
		logging.String("mode", mode),
		logging.Int("realizations", assoc.Len()),
		logging.Int("keys", len(assoc.Keys())))
	return nil
}

// maxWeight returns the configured ceiling or derives it from the weight
// of the active groups
func (e *execution) maxWeight() float64 {
	sc := e.c.cfg.Scheduler
	if sc.MaxWeight > 0 {
		return sc.MaxWeight
	}
	total := 0.0
	for _, id := range e.assoc.Groups() {
		if g, err := e.store.Group(id); err == nil {
			total += g.Weight()
		}
	}
	return scheduler.MaxWeight(total, sc.ConcurrentTasks, sc.MinWeight)
}

func (e *execution) filtering(ctx context.Context) error {
	ceiling := e.maxWeight()
	mgr := &sourcemgr.Manager{
		Sites:       e.in.Sites,
		MaxDistance: sourcemgr.MaxDistance(e.calc.MaximumDistance),
		Ceiling:     ceiling,
		Monitor:     e.mon,
	}
	groups, infos, err := mgr.Prepare(ctx, e.store, e.assoc.Groups())
	if err != nil {
		return e.fail(StageFiltering, "", err)
	}
	e.specs = scheduler.Plan(groups, ceiling)

	numSplit := 0
	for _, info := range infos {
		if info.NumSplit > 1 {
			numSplit++
		}
	}
	e.mon.Logger().Info("tasks planned",
		logging.Int("tasks", len(e.specs)),
		logging.Float64("max_weight", ceiling),
		logging.Int("sources", len(infos)),
		logging.Int("split_sources", numSplit))

	if err := e.c.jobs.SetCounts(ctx, e.job.ID, len(e.specs), e.assoc.Len()); err != nil {
		return e.fail(StageFiltering, "job", err)
	}
	return nil
}

// task builds the payload of one planned task
func (e *execution) task(spec scheduler.TaskSpec) *hazard.Task {
	return &hazard.Task{
		ID:                spec.ID,
		Kind:              e.calc.Kind(),
		GroupID:           spec.GroupID,
		TRT:               spec.TRT,
		Sources:           spec.Sources,
		Sites:             e.in.Sites,
		GMMs:              e.assoc.GMMsByGroup(spec.GroupID),
		IMTLs:             e.calc.IMTLs,
		InvestigationTime: e.calc.InvestigationTime,
		Truncation:        e.calc.TruncationLevel,
		MaxDistance:       sourcemgr.MaxDistance(e.calc.MaximumDistance).For(spec.TRT),
		Seed:              e.calc.RandomSeed,
		SESPerPath:        e.calc.SESPerPath,
	}
}

func (e *execution) execute(ctx context.Context) error {
	e.agg = aggregate.New(e.assoc, aggregate.Options{
		CalculationID:     e.job.ID,
		Kind:              e.calc.Kind(),
		SiteIDs:           e.in.Sites.IDs(),
		IMTLs:             e.calc.IMTLs,
		InvestigationTime: e.calc.InvestigationTime,
	})
	ids := make([]uint64, len(e.specs))
	for i, spec := range e.specs {
		ids[i] = spec.ID
	}
	if err := e.agg.Expect(ids...); err != nil {
		return e.fail(StageExecution, "", err)
	}

	pool, err := e.c.pools(e.job.ID, hazard.Handler(e.in.Registry))
	if err != nil {
		return e.fail(StageExecution, "pool", err)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			e.mon.Logger().Warn("pool close failed", logging.Error(cerr))
		}
	}()

	sc := e.c.cfg.Scheduler
	sched := scheduler.New(scheduler.Config{
		Kind:        e.calc.Mode,
		MaxAttempts: sc.MaxAttempts,
		MaxInFlight: sc.MaxInFlight,
		TaskTimeout: sc.TaskTimeout,
	}, e.mon)

	encode := func(spec scheduler.TaskSpec) ([]byte, error) {
		return codec.Encode(e.task(spec))
	}
	fold := func(spec scheduler.TaskSpec, payload []byte) error {
		var partial hazard.PartialResult
		if err := codec.Decode(payload, &partial); err != nil {
			return err
		}
		for _, st := range partial.SourceTimes {
			e.mon.Record("compute sources", st.Elapsed, 0, st.NumRuptures)
		}
		return e.agg.Fold(&partial)
	}

	if err := sched.Run(ctx, e.specs, pool, encode, fold); err != nil {
		var terr *scheduler.TaskExecutionError
		if errors.As(err, &terr) {
			return e.fail(StageExecution, fmt.Sprintf("task %d (%s)", terr.TaskID, terr.SourceRange), err)
		}
		return e.fail(StageExecution, "", err)
	}
	return nil
}

func (e *execution) aggregation(ctx context.Context) error {
	res, err := e.agg.Finalize()
	if err != nil {
		return e.fail(StageAggregation, "", err)
	}
	e.res = res

	total := 0
	for _, n := range e.res.EffRuptures {
		total += n
	}
	e.mon.Logger().Info("result frozen",
		logging.Int("tasks", e.res.NumTasks),
		logging.Int("effective_ruptures", total),
		logging.Int("groups", len(e.res.EffRuptures)),
		logging.String("digest", e.res.Digest))
	return nil
}

func (e *execution) statistics(ctx context.Context) error {
	wanted := e.calc.MeanCurves || len(e.calc.Quantiles) > 0 || len(e.calc.PoEs) > 0
	if e.res.Kind != hazard.KindClassical || !wanted {
		return nil
	}
	st, err := stats.Compute(e.res, stats.Options{
		Mean:      e.calc.MeanCurves,
		Quantiles: e.calc.Quantiles,
		PoEs:      e.calc.PoEs,
		Sampled:   e.assoc.Sampled(),
	})
	if err != nil {
		return e.fail(StageStatistics, "", err)
	}
	e.res.Statistics = st
	return nil
}

// persist exports before saving so the result store, which the query API
// serves, never holds a result whose calculation failed
func (e *execution) persist(ctx context.Context) error {
	if e.c.exporter != nil {
		if _, err := e.c.exporter.Export(ctx, e.res); err != nil {
			return e.fail(StagePersist, "export", err)
		}
	}
	if e.c.results != nil {
		if err := e.c.results.Save(e.res); err != nil {
			return e.fail(StagePersist, "result store", err)
		}
	}
	return nil
}
