// Package pipeline learns DMP models from demonstrations: it aligns demonstrations in
// time, encodes them with a GMM, regresses a trajectory with GMR and fits a DMP to it.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/milosgajdos/go-lfd/align"
	"github.com/milosgajdos/go-lfd/bayesopt"
	"github.com/milosgajdos/go-lfd/dmp"
	"github.com/milosgajdos/go-lfd/encode"
	"github.com/milosgajdos/go-lfd/gmcc"
	"github.com/milosgajdos/go-lfd/gmr"
	"github.com/milosgajdos/go-lfd/metrics"
	"github.com/milosgajdos/go-lfd/trajectory"
	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/floats"
)

// Result is a learned model along with the intermediate results it was learned from
type Result struct {
	// ID identifies the run
	ID uuid.UUID
	// Set holds the aligned demonstrations
	Set *align.Set
	// Encoding is the selected GMM with its selection scores
	Encoding *encode.Result
	// Regression is the GMR trajectory
	Regression *trajectory.Timed
	// Model is the DMP fitted to the regression
	Model *dmp.Model
	// Search is the hyperparameter search result; nil when parameters were configured
	Search *bayesopt.Result
}

// Validation scores a reproduction of the learned model
type Validation struct {
	// Reproduction is the DMP reproduction
	Reproduction *trajectory.Timed
	// GMCC is the symmetric GMCC of the reproduction and the regression
	GMCC float64
	// GoalError is the distance of the final reproduced sample from the goal
	GoalError float64
}

// Pipeline learns DMP models from demonstrations
type Pipeline struct {
	c       Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates new pipeline and returns it.
// If logger is nil the default logger is used. If m is nil metrics are recorded
// into a private registry.
// It returns error if c is not valid.
func New(c Config, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	return &Pipeline{
		c:       c,
		logger:  logger,
		metrics: m,
	}, nil
}

// stage runs f recording its duration and failure.
func (p *Pipeline) stage(name string, f func() error) error {
	start := time.Now()
	err := f()
	p.metrics.RecordStage(name, time.Since(start).Seconds())

	if err != nil {
		reason := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = "cancelled"
		}
		p.metrics.RecordError(name, reason)
		p.logger.Error("stage failed", "stage", name, "error", err)
	}

	return err
}

// LoadDir loads demonstration files from dir.
// Files that fail to load are logged and skipped.
func (p *Pipeline) LoadDir(dir string) ([]*trajectory.Timed, error) {
	var demos []*trajectory.Timed
	err := p.stage(metrics.StageLoad, func() (err error) {
		demos, err = trajectory.LoadDir(dir, p.logger)
		return err
	})

	return demos, err
}

// Learn learns a DMP model from demos.
// Cancelling ctx aborts alignment and encoding. A cancelled hyperparameter search
// returns the model fitted with the best parameters found so far along with the error.
func (p *Pipeline) Learn(ctx context.Context, demos []*trajectory.Timed) (*Result, error) {
	res := &Result{ID: uuid.New()}
	logger := p.logger.With("run", res.ID.String())
	logger.Info("learning started", "demonstrations", len(demos))
	p.metrics.SetDemos(len(demos))

	err := p.stage(metrics.StageAlign, func() (err error) {
		res.Set, err = align.Align(ctx, demos, p.c.Align, logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(metrics.StageEncode, func() (err error) {
		res.Encoding, err = encode.Encode(ctx, res.Set, p.c.Encode, logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.SetComponents(res.Encoding.K)
	for _, b := range res.Encoding.BIC {
		logger.Info("bic score", "k", b.K, "mean", b.Mean, "std", b.Std)
	}

	err = p.stage(metrics.StageRegress, func() (err error) {
		res.Regression, err = gmr.Regress(res.Set, res.Encoding.GMM)
		return err
	})
	if err != nil {
		return nil, err
	}

	var searchErr error
	err = p.stage(metrics.StageDMP, func() error {
		demo, err := dmp.NewDemo(res.Regression)
		if err != nil {
			return err
		}

		if p.c.Params != nil {
			res.Model, err = dmp.Fit(demo, *p.c.Params)
			return err
		}

		res.Model, res.Search, searchErr = dmp.Optimize(ctx, demo, p.c.DMP, logger)
		if res.Model == nil {
			return searchErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e, err := res.Model.Error()
	if err != nil {
		return nil, err
	}
	params := res.Model.Params()
	p.metrics.SetDMP(params.NRFs, e)

	logger.Info("learning finished",
		"samples", res.Set.Samples(),
		"components", res.Encoding.K,
		"alpha_z", params.AlphaZ,
		"n_rfs", params.NRFs,
		"error", e,
	)

	return res, searchErr
}

// Validate reproduces the learned model from start toward goal and scores the
// reproduction against the regression trajectory.
func (p *Pipeline) Validate(res *Result, goal, start []float64) (*Validation, error) {
	v := &Validation{}

	err := p.stage(metrics.StageValidate, func() (err error) {
		if v.Reproduction, err = res.Model.Reproduce(goal, start); err != nil {
			return err
		}

		v.GMCC, err = gmcc.Symmetric(res.Regression.Joints(), v.Reproduction.Joints(), p.c.GMCC.Seed)
		return err
	})
	if err != nil {
		return nil, err
	}

	v.GoalError = floats.Distance(v.Reproduction.JointsAt(v.Reproduction.Len()-1), goal, 2)
	p.metrics.SetGMCC(v.GMCC)

	p.logger.Info("reproduction validated", "run", res.ID.String(), "gmcc", v.GMCC, "goal_error", v.GoalError)

	return v, nil
}

// Compare returns the symmetric GMCC of two trajectories of possibly different
// lengths after trimming their static onsets.
func (p *Pipeline) Compare(a, b *trajectory.Timed) (float64, error) {
	return gmcc.Trajectories(a, b, p.c.GMCC.Tol, p.c.GMCC.Seed)
}
