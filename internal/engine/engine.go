// Package engine provides the policy decision point: a pure evaluation of a
// trading request against the role and attribute rules
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/trading-pdp/internal/metrics"
	"github.com/authz-engine/trading-pdp/internal/policy"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// Engine is the policy decision point. It holds no per-request state; any
// number of goroutines may call Evaluate concurrently.
type Engine struct {
	holder     *policy.Holder
	clock      func() time.Time
	metrics    metrics.Metrics
	logger     *zap.Logger
	workerPool *WorkerPool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for audit timestamps
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithMetrics records every decision to m
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the logger used for evaluation errors
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithParallelWorkers bounds the concurrency of EvaluateBatch
func WithParallelWorkers(n int) Option {
	return func(e *Engine) {
		e.workerPool = NewWorkerPool(n)
	}
}

// New creates a decision engine over cfg. A nil cfg uses policy.DefaultConfig.
func New(cfg *policy.Config, opts ...Option) *Engine {
	e := &Engine{
		holder:  policy.NewHolder(cfg),
		clock:   time.Now,
		metrics: metrics.NewNoOpMetrics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workerPool == nil {
		e.workerPool = NewWorkerPool(16)
	}
	return e
}

// Config returns the configuration snapshot currently in force
func (e *Engine) Config() *policy.Config {
	return e.holder.Load()
}

// ConfigSwaps reports how many times ReplaceConfig has installed a config
func (e *Engine) ConfigSwaps() uint64 {
	return e.holder.Swaps()
}

// ReplaceConfig atomically installs a new configuration. Evaluations already
// running finish against the snapshot they started with.
func (e *Engine) ReplaceConfig(cfg *policy.Config) {
	if cfg == nil {
		return
	}
	prev := e.holder.Replace(cfg)
	e.metrics.RecordConfigSwap()
	e.logger.Info("Policy configuration replaced",
		zap.String("previous", prev.Fingerprint()),
		zap.String("current", cfg.Fingerprint()),
	)
}

// Evaluate returns the decision for one request. It never fails: an internal
// error produces a deny with an evaluation-error reason.
func (e *Engine) Evaluate(req *types.Request) *types.Decision {
	decision, _ := e.decide(req)
	return decision
}

// Explain evaluates a request and returns the outcome of every check in
// precedence order, role check first, alongside the decision. Both come from
// the same configuration snapshot.
func (e *Engine) Explain(req *types.Request) (*types.Decision, []CheckResult) {
	return e.decide(req)
}

func (e *Engine) decide(req *types.Request) (decision *types.Decision, checks []CheckResult) {
	start := time.Now()
	ts := e.clock().UnixNano()

	defer func() {
		if r := recover(); r != nil {
			decision = failClosed(req, ts, fmt.Sprintf("%v", r))
			checks = nil
			e.logger.Error("Policy evaluation panicked",
				zap.Any("panic", r),
				zap.String("subject", decision.Audit.Subject),
				zap.String("action", decision.Audit.Action),
			)
		}
		e.metrics.RecordDecision(string(decision.Code), decision.Allow, time.Since(start))
	}()

	if req == nil {
		return failClosed(nil, ts, "nil request"), nil
	}
	return evaluate(e.holder.Load(), req, ts)
}

// EvaluateBatch evaluates requests concurrently and returns decisions in
// request order. Requests not started before ctx ends are denied with an
// evaluation-error reason.
func (e *Engine) EvaluateBatch(ctx context.Context, requests []*types.Request) []*types.Decision {
	decisions := make([]*types.Decision, len(requests))
	var wg sync.WaitGroup

	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			decisions[i] = failClosed(req, e.clock().UnixNano(), err.Error())
			continue
		}

		wg.Add(1)
		idx, r := i, req
		if !e.workerPool.Submit(ctx, func() {
			defer wg.Done()
			decisions[idx] = e.Evaluate(r)
		}) {
			wg.Done()
			decisions[idx] = failClosed(r, e.clock().UnixNano(), context.Cause(ctx).Error())
		}
	}

	wg.Wait()
	return decisions
}

// evaluate is the decision function proper. Given the same config, request
// and timestamp it always returns the same decision. The returned results hold
// the role check followed by every attribute check in precedence order.
func evaluate(cfg *policy.Config, req *types.Request, ts int64) (*types.Decision, []CheckResult) {
	attrs := attributes(req.Context)

	results := make([]CheckResult, 0, len(abacChecks)+1)
	results = append(results, rolePermission(cfg, req))
	for _, c := range abacChecks {
		results = append(results, c.run(cfg, req, attrs))
	}

	// A role denial outranks every attribute check; otherwise allow is the
	// conjunction of all checks and the first failure names the reason
	allow := true
	code := types.ReasonAllowed
	reason := string(types.ReasonAllowed)
	for _, res := range results {
		if !res.OK {
			allow = false
			code = res.Code
			reason = res.Reason()
			break
		}
	}

	return newDecision(req, allow, code, reason, ts), results
}

func failClosed(req *types.Request, ts int64, detail string) *types.Decision {
	if req == nil {
		req = &types.Request{}
	}
	reason := string(types.ReasonEvaluationError)
	if detail != "" {
		reason += ": " + detail
	}
	return newDecision(req, false, types.ReasonEvaluationError, reason, ts)
}

func newDecision(req *types.Request, allow bool, code types.ReasonCode, reason string, ts int64) *types.Decision {
	return &types.Decision{
		Allow:        allow,
		Reason:       reason,
		RateLimitKey: RateLimitKey(req.Tenant, req.Subject, req.Action),
		Code:         code,
		Audit: types.AuditRecord{
			Subject:     req.Subject,
			Action:      req.Action,
			Resource:    req.Resource,
			Tenant:      req.Tenant,
			Allow:       allow,
			Reason:      reason,
			TimestampNs: ts,
		},
	}
}
