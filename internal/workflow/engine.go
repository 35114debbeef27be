// SPDX-License-Identifier: Apache-2.0

// Package workflow implements the deployment workflow engine: durable,
// idempotent step tracking for per-site provisioning sequences. Every
// mutation is a read-modify-write against the site's single record,
// protected by a value-level compare-and-swap with bounded retry, so
// concurrent workers never lose each other's updates.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/backoff"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/domain"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/metrics"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
)

const defaultMaxAttempts = 4

// errNoChange signals that a mutation turned out to be a no-op and the
// record must not be rewritten.
var errNoChange = errors.New("no change")

// Option configures the Engine.
type Option func(*Engine)

// WithTotalSteps overrides the expected step count for new deployments.
func WithTotalSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.totalSteps = n
		}
	}
}

// WithMaxAttempts bounds the CAS retry loop.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay strategy between CAS retries.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.backoff = s
		}
	}
}

// WithRecordTTL sets an expiry on persisted deployment records.
// Zero (the default) keeps records forever.
func WithRecordTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.recordTTL = ttl }
}

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine sequences, records, and resumes deployment steps on top of a
// statestore.Store handle passed at construction.
type Engine struct {
	store       statestore.Store
	logger      *slog.Logger
	totalSteps  int
	maxAttempts int
	backoff     backoff.Strategy
	recordTTL   time.Duration
	now         func() time.Time
}

// New creates an Engine. The store is required; a nil logger falls back to
// slog.Default().
func New(store statestore.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:       store,
		logger:      logger,
		totalSteps:  domain.DefaultTotalSteps,
		maxAttempts: defaultMaxAttempts,
		backoff:     backoff.DefaultStrategy(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateDeployment initializes and persists a fresh deployment for a site.
// A site that already has a record, terminal or not, is rejected with
// domain.ErrDeploymentExists; recovery goes through RestartDeployment.
func (e *Engine) CreateDeployment(ctx context.Context, siteID, orgID, siteName string) (*domain.DeploymentState, error) {
	if siteID == "" {
		return nil, domain.ErrInvalidSiteID
	}

	now := e.now().UTC()
	state := &domain.DeploymentState{
		SiteID:     siteID,
		OrgID:      orgID,
		SiteName:   siteName,
		Status:     domain.DeploymentInProgress,
		Steps:      make(map[int]*domain.StepState),
		TotalSteps: e.totalSteps,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode deployment: %w", err)
	}

	started := time.Now()
	ok, err := e.store.SetNX(ctx, statestore.DeploymentKey(siteID), raw, e.recordTTL)
	metrics.ObserveStoreOpDuration("setnx", time.Since(started))
	if err != nil {
		e.logger.Error("create deployment persist failed", "site_id", siteID, "error", err)
		return nil, storeUnavailable(err)
	}
	if !ok {
		return nil, domain.ErrDeploymentExists
	}

	metrics.IncDeploymentStatus(string(domain.DeploymentInProgress))
	e.logger.Info("deployment created",
		"site_id", siteID,
		"org_id", orgID,
		"site_name", siteName,
		"total_steps", e.totalSteps,
	)

	return state, nil
}

// GetDeployment returns the persisted state for a site.
// Absent records and store outages both report domain.ErrDeploymentNotFound:
// callers treat "no record" as "workflow not started".
func (e *Engine) GetDeployment(ctx context.Context, siteID string) (*domain.DeploymentState, error) {
	raw, err := e.store.Get(ctx, statestore.DeploymentKey(siteID))
	if err != nil {
		if !errors.Is(err, statestore.ErrKeyNotFound) {
			e.logger.Warn("get deployment read failed", "site_id", siteID, "error", err)
		}
		return nil, domain.ErrDeploymentNotFound
	}

	state := &domain.DeploymentState{}
	if err := json.Unmarshal(raw, state); err != nil {
		e.logger.Error("deployment record corrupt", "site_id", siteID, "error", err)
		return nil, domain.ErrDeploymentNotFound
	}
	return state, nil
}

// StartStep marks a step IN_PROGRESS and makes it the deployment's current
// step. Restarting an already-running step refreshes its timestamp; a step
// that has already finished is never regressed. When no deployment exists
// the returned step is transient and NOT persisted.
func (e *Engine) StartStep(ctx context.Context, siteID string, stepNum int, stepName string) (*domain.StepState, error) {
	if stepNum < 1 {
		return nil, domain.ErrInvalidStepNum
	}

	var out *domain.StepState
	_, err := e.mutate(ctx, siteID, func(state *domain.DeploymentState) error {
		if existing := state.Step(stepNum); existing != nil && existing.Terminal() {
			out = existing
			return errNoChange
		}

		now := e.now().UTC()
		out = &domain.StepState{
			StepNum:   stepNum,
			Name:      stepName,
			Status:    domain.StepInProgress,
			StartedAt: &now,
		}
		if state.Steps == nil {
			state.Steps = make(map[int]*domain.StepState)
		}
		state.Steps[stepNum] = out
		state.CurrentStep = stepNum
		state.Status = domain.DeploymentInProgress
		return nil
	})
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		return &domain.StepState{StepNum: stepNum, Name: stepName, Status: domain.StepPending}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.IncStepStatus(string(domain.StepInProgress))
	e.logger.Info("step started", "site_id", siteID, "step", stepNum, "name", stepName)
	return out, nil
}

// CompleteStep marks a step COMPLETED and stores its result payload. When
// every expected step has completed the deployment itself completes.
// Completing an unknown step or a step of an unknown site returns a
// synthetic COMPLETED step without persisting anything; completing an
// already-completed step is a no-op on the aggregate.
func (e *Engine) CompleteStep(ctx context.Context, siteID string, stepNum int, result map[string]any) (*domain.StepState, error) {
	if stepNum < 1 {
		return nil, domain.ErrInvalidStepNum
	}

	var out *domain.StepState
	var deploymentDone bool
	_, err := e.mutate(ctx, siteID, func(state *domain.DeploymentState) error {
		step := state.Step(stepNum)
		if step == nil {
			out = &domain.StepState{StepNum: stepNum, Name: "unknown", Status: domain.StepCompleted}
			return errNoChange
		}
		if step.Terminal() {
			out = step
			return errNoChange
		}

		now := e.now().UTC()
		step.Status = domain.StepCompleted
		step.CompletedAt = &now
		step.Result = result
		out = step

		if state.CompletedSteps() >= state.TotalSteps {
			state.Status = domain.DeploymentCompleted
			deploymentDone = true
		}
		return nil
	})
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		return &domain.StepState{StepNum: stepNum, Name: "unknown", Status: domain.StepCompleted}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.IncStepStatus(string(domain.StepCompleted))
	e.logger.Info("step completed", "site_id", siteID, "step", stepNum)
	if deploymentDone {
		metrics.IncDeploymentStatus(string(domain.DeploymentCompleted))
		e.logger.Info("deployment completed", "site_id", siteID)
	}
	return out, nil
}

// FailStep marks a step FAILED and fails the whole deployment: steps are
// provisioning actions assumed sequentially dependent, so there is no
// partial-failure tolerance. The driver's failure report is authoritative
// and overwrites the step regardless of its prior status.
func (e *Engine) FailStep(ctx context.Context, siteID string, stepNum int, stepErr string) (*domain.StepState, error) {
	if stepNum < 1 {
		return nil, domain.ErrInvalidStepNum
	}

	var out *domain.StepState
	_, err := e.mutate(ctx, siteID, func(state *domain.DeploymentState) error {
		step := state.Step(stepNum)
		if step == nil {
			out = &domain.StepState{StepNum: stepNum, Name: "unknown", Status: domain.StepFailed, Error: stepErr}
			return errNoChange
		}

		now := e.now().UTC()
		step.Status = domain.StepFailed
		step.Error = stepErr
		step.CompletedAt = &now
		step.Result = nil
		out = step

		state.Status = domain.DeploymentFailed
		return nil
	})
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		return &domain.StepState{StepNum: stepNum, Name: "unknown", Status: domain.StepFailed, Error: stepErr}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.IncStepStatus(string(domain.StepFailed))
	metrics.IncDeploymentStatus(string(domain.DeploymentFailed))
	e.logger.Warn("step failed", "site_id", siteID, "step", stepNum, "error", stepErr)
	return out, nil
}

// RestartDeployment recovers a FAILED deployment: failed steps reset to
// PENDING, completed steps keep their results so the idempotency guard
// skips them on re-run, and the aggregate goes back to IN_PROGRESS.
func (e *Engine) RestartDeployment(ctx context.Context, siteID string) (*domain.DeploymentState, error) {
	state, err := e.mutate(ctx, siteID, func(state *domain.DeploymentState) error {
		if state.Status != domain.DeploymentFailed {
			return domain.ErrDeploymentNotRestartable
		}

		for _, step := range state.Steps {
			if step.Status != domain.StepFailed {
				continue
			}
			step.Status = domain.StepPending
			step.Error = ""
			step.StartedAt = nil
			step.CompletedAt = nil
		}
		state.Status = domain.DeploymentInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncDeploymentStatus(string(domain.DeploymentInProgress))
	e.logger.Info("deployment restarted", "site_id", siteID)
	return state, nil
}

// IsStepCompleted is the idempotency guard: drivers call it before
// re-executing a step's side-effecting work and skip execution when true.
// Absent deployments, absent steps, and store outages all report false.
func (e *Engine) IsStepCompleted(ctx context.Context, siteID string, stepNum int) bool {
	state, err := e.GetDeployment(ctx, siteID)
	if err != nil {
		return false
	}
	step := state.Step(stepNum)
	return step != nil && step.Status == domain.StepCompleted
}

// ListDeployments enumerates the site IDs with a persisted deployment.
// Order is unspecified; an unavailable store yields an empty list.
func (e *Engine) ListDeployments(ctx context.Context) []string {
	keys, err := e.store.Keys(ctx, statestore.DeploymentKeyPrefix)
	if err != nil {
		e.logger.Warn("list deployments failed", "error", err)
		return nil
	}

	siteIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		siteIDs = append(siteIDs, statestore.SiteIDFromKey(key))
	}
	return siteIDs
}

// mutate runs one read-modify-write cycle under CAS protection, retrying
// the whole cycle with backoff while concurrent writers invalidate it.
// apply may return errNoChange to skip the write.
func (e *Engine) mutate(ctx context.Context, siteID string, apply func(*domain.DeploymentState) error) (*domain.DeploymentState, error) {
	key := statestore.DeploymentKey(siteID)

	for attempt := 1; ; attempt++ {
		readStart := time.Now()
		raw, err := e.store.Get(ctx, key)
		metrics.ObserveStoreOpDuration("get", time.Since(readStart))
		if err != nil {
			if errors.Is(err, statestore.ErrKeyNotFound) {
				return nil, domain.ErrDeploymentNotFound
			}
			e.logger.Error("deployment read failed", "site_id", siteID, "error", err)
			return nil, storeUnavailable(err)
		}

		state := &domain.DeploymentState{}
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, fmt.Errorf("decode deployment %s: %w", siteID, err)
		}

		if err := apply(state); err != nil {
			if errors.Is(err, errNoChange) {
				return state, nil
			}
			return nil, err
		}

		state.Version++
		state.UpdatedAt = e.now().UTC()

		next, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("encode deployment %s: %w", siteID, err)
		}

		casStart := time.Now()
		err = e.store.CompareAndSwap(ctx, key, raw, next, e.recordTTL)
		metrics.ObserveStoreOpDuration("cas", time.Since(casStart))
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, statestore.ErrCASMismatch) {
			e.logger.Error("deployment write failed", "site_id", siteID, "error", err)
			return nil, storeUnavailable(err)
		}

		if attempt >= e.maxAttempts {
			metrics.IncCASConflicts()
			e.logger.Warn("cas retries exhausted",
				"site_id", siteID,
				"attempts", attempt,
			)
			return nil, domain.ErrConflict
		}

		metrics.IncCASRetries()
		if err := sleep(ctx, e.backoff.Delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
