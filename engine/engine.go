package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
	"github.com/labelmint/mintflow/workflow/expr"
)

// Recorder persists finished executions. The engine calls it
// asynchronously and never blocks scheduling on persistence.
type Recorder interface {
	RecordExecution(ctx context.Context, exec *Execution) error
}

// Alerter is notified when an execution ends in failure and the
// definition asked for alerts.
type Alerter interface {
	Alert(ctx context.Context, exec *Execution) error
}

// Metrics receives engine-level observations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ExecutionStarted()
	ExecutionFinished(state ExecutionState, d time.Duration)
	NodeFinished(kind workflow.NodeKind, state NodeState, d time.Duration)
	NodeRetried(kind workflow.NodeKind)
}

// Engine walks a definition in dependency order, resolving each ready
// node through the registry, applying retry, timeout and error-handling
// policy, and following guarded edges to compute the next ready set.
// One engine serves many concurrent executions.
type Engine struct {
	registry    *Registry
	logger      *zap.Logger
	recorder    Recorder
	alerter     Alerter
	metrics     Metrics
	tracer      trace.Tracer
	maxParallel int64

	exprMu    sync.RWMutex
	exprCache map[string]*expr.Program
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder sets the execution recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithAlerter sets the failure alerter.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMaxParallel bounds how many nodes of one execution run at once.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = int64(n)
		}
	}
}

// New creates an engine bound to an executor registry.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/labelmint/mintflow/engine"),
		maxParallel: 16,
		exprCache:   make(map[string]*expr.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e
}

// runConfig carries per-run inputs.
type runConfig struct {
	variables map[string]any
	payload   any
	metadata  map[string]string
}

// RunOption configures one execution.
type RunOption func(*runConfig)

// WithVariables seeds the run with variable values, overriding the
// definition's declared defaults.
func WithVariables(vars map[string]any) RunOption {
	return func(c *runConfig) { c.variables = vars }
}

// WithTriggerPayload places an inbound webhook or event payload into
// the context under the "payload" variable before the trigger fires.
func WithTriggerPayload(payload any) RunOption {
	return func(c *runConfig) { c.payload = payload }
}

// WithRunMetadata attaches metadata entries to the run context.
func WithRunMetadata(md map[string]string) RunOption {
	return func(c *runConfig) { c.metadata = md }
}

// Run executes a definition to a terminal state. The returned Execution
// always carries the full set of node-level errors encountered. The
// error is nil when the execution completed, including completions
// with isolated branch failures under the continue strategy.
func (e *Engine) Run(ctx context.Context, def *workflow.WorkflowDefinition, opts ...RunOption) (*Execution, error) {
	if def == nil {
		return nil, types.NewError(types.ErrStructural, "definition is nil")
	}

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	execID := uuid.New().String()
	rc := NewRunContext(execID, def.ID, e.logger)
	for _, v := range def.Variables {
		if v.Default != nil {
			rc.SetVariable(v.Name, v.Default)
		}
	}
	for k, v := range cfg.variables {
		rc.SetVariable(k, v)
	}
	if cfg.payload != nil {
		rc.SetVariable("payload", cfg.payload)
	}
	for k, v := range cfg.metadata {
		rc.SetMetadata(k, v)
	}

	exec := &Execution{
		ID:                execID,
		DefinitionID:      def.ID,
		DefinitionName:    def.Name,
		DefinitionVersion: def.Version,
		State:             StatePending,
		NodeRuns:          make(map[string]*NodeRun, len(def.Nodes)),
		StartedAt:         time.Now(),
	}
	for _, n := range def.Nodes {
		exec.NodeRuns[n.ID] = &NodeRun{NodeID: n.ID, Label: n.Label, Kind: n.Kind, State: NodePending}
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("definition_id", def.ID),
		attribute.String("definition_name", def.Name),
		attribute.Int("definition_version", def.Version),
		attribute.String("execution_id", execID),
	))
	defer span.End()

	e.logger.Info("starting execution",
		zap.String("execution_id", execID),
		zap.String("definition_id", def.ID),
		zap.Int("nodes", len(def.Nodes)),
	)
	if e.metrics != nil {
		e.metrics.ExecutionStarted()
	}

	s := newScheduler(e, def, rc, exec)
	runErr := s.run(ctx)

	exec.FinishedAt = time.Now()
	exec.Duration = exec.FinishedAt.Sub(exec.StartedAt)
	exec.Variables = rc.Snapshot()

	if runErr != nil {
		span.SetStatus(codes.Error, string(exec.State))
		span.RecordError(runErr)
		e.logger.Error("execution finished",
			zap.String("execution_id", execID),
			zap.String("state", string(exec.State)),
			zap.Duration("duration", exec.Duration),
			zap.Error(runErr),
		)
	} else {
		e.logger.Info("execution finished",
			zap.String("execution_id", execID),
			zap.String("state", string(exec.State)),
			zap.Duration("duration", exec.Duration),
			zap.Int("nodes_completed", exec.CountNodes(NodeCompleted)),
			zap.Int("nodes_skipped", exec.CountNodes(NodeSkipped)),
		)
	}
	if e.metrics != nil {
		e.metrics.ExecutionFinished(exec.State, exec.Duration)
	}

	e.record(exec)
	if def.Settings.ErrorHandling.AlertOnError && (exec.State == StateFailed || exec.State == StateTimedOut) {
		e.alert(exec)
	}

	return exec, runErr
}

// record hands the finished execution to the recorder without blocking.
func (e *Engine) record(exec *Execution) {
	if e.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.recorder.RecordExecution(ctx, exec); err != nil {
			e.logger.Error("failed to record execution",
				zap.String("execution_id", exec.ID),
				zap.Error(err),
			)
		}
	}()
}

// alert notifies the alerter without blocking.
func (e *Engine) alert(exec *Execution) {
	if e.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.alerter.Alert(ctx, exec); err != nil {
			e.logger.Error("failed to alert on execution failure",
				zap.String("execution_id", exec.ID),
				zap.Error(err),
			)
		}
	}()
}

// compileExpr parses an expression, memoizing programs by source text.
func (e *Engine) compileExpr(src string) (*expr.Program, error) {
	e.exprMu.RLock()
	prog := e.exprCache[src]
	e.exprMu.RUnlock()
	if prog != nil {
		return prog, nil
	}
	prog, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}
	e.exprMu.Lock()
	e.exprCache[src] = prog
	e.exprMu.Unlock()
	return prog, nil
}

// nodeOutcome is what a worker reports back to the scheduler loop.
type nodeOutcome struct {
	nodeID   string
	result   NodeResult
	attempts int
	err      error
}

// scheduler owns the graph bookkeeping of one execution. All maps are
// touched only by the scheduling goroutine; workers communicate through
// the outcome channel.
type scheduler struct {
	engine *Engine
	def    *workflow.WorkflowDefinition
	rc     *RunContext
	exec   *Execution

	nodes    map[string]workflow.WorkflowNode
	incoming map[string][]workflow.WorkflowEdge
	outgoing map[string][]workflow.WorkflowEdge

	// resolved holds terminal node states; a node is ready only when
	// every incoming edge's source has resolved (join = logical AND)
	resolved map[string]NodeState
	running  map[string]bool
	// resolvedPreds counts incoming edges whose source resolved;
	// firedPreds counts those that also activated (source completed
	// and guard passed)
	resolvedPreds map[string]int
	firedPreds    map[string]int

	errs          []error
	stopRequested bool
	cancelNodes   context.CancelCauseFunc
}

func newScheduler(e *Engine, def *workflow.WorkflowDefinition, rc *RunContext, exec *Execution) *scheduler {
	s := &scheduler{
		engine:        e,
		def:           def,
		rc:            rc,
		exec:          exec,
		nodes:         make(map[string]workflow.WorkflowNode, len(def.Nodes)),
		incoming:      make(map[string][]workflow.WorkflowEdge),
		outgoing:      make(map[string][]workflow.WorkflowEdge),
		resolved:      make(map[string]NodeState, len(def.Nodes)),
		running:       make(map[string]bool),
		resolvedPreds: make(map[string]int),
		firedPreds:    make(map[string]int),
	}
	for _, n := range def.Nodes {
		s.nodes[n.ID] = n
	}
	for _, edge := range def.Edges {
		s.outgoing[edge.Source] = append(s.outgoing[edge.Source], edge)
		s.incoming[edge.Target] = append(s.incoming[edge.Target], edge)
	}
	return s
}

// errBudget is the cause attached to the execution deadline so workers
// can tell budget exhaustion apart from operator cancellation.
func errBudget(d time.Duration) error {
	return types.NewError(types.ErrTimeout, fmt.Sprintf("execution exceeded its %s budget", d))
}

func (s *scheduler) run(ctx context.Context) error {
	runCtx := ctx
	if d := s.def.Settings.Timeout.Std(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, d, errBudget(d))
		defer cancel()
	}
	nodeCtx, cancelNodes := context.WithCancelCause(runCtx)
	defer cancelNodes(nil)
	s.cancelNodes = cancelNodes

	sem := semaphore.NewWeighted(s.engine.maxParallel)
	results := make(chan nodeOutcome, len(s.def.Nodes))
	inFlight := 0

	dispatch := func(node workflow.WorkflowNode) {
		s.running[node.ID] = true
		run := s.exec.NodeRuns[node.ID]
		run.State = NodeRunning
		run.StartedAt = time.Now()
		inFlight++
		go s.invoke(nodeCtx, sem, node, results)
	}

	s.exec.State = StateRunning
	for _, trigger := range s.def.TriggerNodes() {
		dispatch(trigger)
	}

	for inFlight > 0 {
		out := <-results
		inFlight--
		delete(s.running, out.nodeID)
		for _, node := range s.handle(out) {
			dispatch(node)
		}
	}

	return s.finalize(ctx, runCtx)
}

// invoke runs one node with retry on a worker goroutine.
func (s *scheduler) invoke(ctx context.Context, sem *semaphore.Weighted, node workflow.WorkflowNode, results chan<- nodeOutcome) {
	if err := sem.Acquire(ctx, 1); err != nil {
		results <- nodeOutcome{nodeID: node.ID, err: causeError(ctx)}
		return
	}
	defer sem.Release(1)

	ctx, span := s.engine.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node_id", node.ID),
		attribute.String("node_kind", string(node.Kind)),
	))
	defer span.End()

	retry := s.def.Settings.Retry
	res, attempts, err := runWithRetry(ctx, retry, func(ctx context.Context) (NodeResult, error) {
		return s.executeOnce(ctx, node)
	})

	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.SetStatus(codes.Error, "node failed")
		span.RecordError(err)
	}
	if attempts > 1 && s.engine.metrics != nil {
		s.engine.metrics.NodeRetried(node.Kind)
	}

	results <- nodeOutcome{nodeID: node.ID, result: res, attempts: attempts, err: err}
}

// executeOnce re-validates the node's configuration defensively, checks
// its input rules and invokes the registered executor.
func (s *scheduler) executeOnce(ctx context.Context, node workflow.WorkflowNode) (NodeResult, error) {
	if node.Config == nil {
		return NodeResult{}, types.NewError(types.ErrConfigValidation, "node has no configuration").
			WithNodeID(node.ID)
	}
	if err := node.Config.Validate(); err != nil {
		return NodeResult{}, types.NewError(types.ErrConfigValidation, "invalid node configuration").
			WithNodeID(node.ID).
			WithCause(err)
	}
	if len(node.Rules) > 0 {
		if err := workflow.CheckRules(node.Rules, s.rc.Snapshot()); err != nil {
			return NodeResult{}, types.NewError(types.ErrConfigValidation, "node input rules violated").
				WithNodeID(node.ID).
				WithCause(err)
		}
	}

	executor, err := s.engine.registry.Resolve(node.Kind)
	if err != nil {
		return NodeResult{}, err
	}
	return executor.Execute(ctx, node, s.rc)
}

// handle applies one node outcome to the graph state and returns the
// nodes it made ready.
func (s *scheduler) handle(out nodeOutcome) []workflow.WorkflowNode {
	run := s.exec.NodeRuns[out.nodeID]
	run.Attempts = out.attempts
	run.FinishedAt = time.Now()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	node := s.nodes[out.nodeID]

	if out.err != nil {
		err := ensureCode(out.err, out.nodeID)
		state := NodeFailed
		if types.IsErrorCode(err, types.ErrCancelled) {
			state = NodeCancelled
		}
		run.State = state
		run.Error = err.Error()
		s.resolved[out.nodeID] = state
		s.errs = append(s.errs, err)

		s.rc.Logger().Error("node failed",
			zap.String("node_id", out.nodeID),
			zap.String("node_kind", string(node.Kind)),
			zap.Int("attempts", out.attempts),
			zap.Duration("duration", run.Duration),
			zap.Error(err),
		)
		if s.engine.metrics != nil {
			s.engine.metrics.NodeFinished(node.Kind, state, run.Duration)
		}

		// Timeouts and cancellations end the run regardless of
		// strategy; node faults only under stop.
		if types.IsFatal(err) || s.def.Settings.ErrorHandling.Strategy == workflow.StrategyStop {
			s.requestStop(err)
		}
		return s.resolveOutgoing(out.nodeID, false, nil)
	}

	output := out.result.Output
	if output == nil {
		output = map[string]any{}
	}
	// The output must be visible to successors before any of them can
	// become ready.
	s.rc.SetOutput(out.nodeID, output)
	run.State = NodeCompleted
	run.Output = output
	s.resolved[out.nodeID] = NodeCompleted

	s.rc.Logger().Debug("node completed",
		zap.String("node_id", out.nodeID),
		zap.String("node_kind", string(node.Kind)),
		zap.Int("attempts", out.attempts),
		zap.Duration("duration", run.Duration),
	)
	if s.engine.metrics != nil {
		s.engine.metrics.NodeFinished(node.Kind, NodeCompleted, run.Duration)
	}

	return s.resolveOutgoing(out.nodeID, true, s.rc.Snapshot())
}

// resolveOutgoing resolves every edge leaving a node. Edges fire only
// when the source completed and their guard, if any, passes against the
// snapshot taken after the source's output was merged.
func (s *scheduler) resolveOutgoing(sourceID string, completed bool, snap map[string]any) []workflow.WorkflowNode {
	var ready []workflow.WorkflowNode
	for _, edge := range s.outgoing[sourceID] {
		fired := false
		if completed {
			if edge.Guard == "" {
				fired = true
			} else {
				pass, err := s.evalGuard(edge.Guard, snap)
				if err != nil {
					gerr := types.NewError(types.ErrExpression,
						fmt.Sprintf("guard on edge %s failed to evaluate", edge.ID)).WithCause(err)
					s.errs = append(s.errs, gerr)
					s.rc.Logger().Warn("edge guard evaluation failed",
						zap.String("edge_id", edge.ID),
						zap.String("guard", edge.Guard),
						zap.Error(err),
					)
					if s.def.Settings.ErrorHandling.Strategy == workflow.StrategyStop {
						s.requestStop(gerr)
					}
				} else {
					fired = pass
				}
			}
		}
		s.resolvedPreds[edge.Target]++
		if fired {
			s.firedPreds[edge.Target]++
		}
		ready = append(ready, s.tryResolve(edge.Target)...)
	}
	return ready
}

// tryResolve checks whether a node has all predecessors resolved. With
// at least one fired incoming edge it becomes ready; with none it is
// skipped, and the skip cascades to its successors.
func (s *scheduler) tryResolve(nodeID string) []workflow.WorkflowNode {
	if _, done := s.resolved[nodeID]; done {
		return nil
	}
	if s.running[nodeID] {
		return nil
	}
	if s.resolvedPreds[nodeID] < len(s.incoming[nodeID]) {
		return nil
	}

	if s.firedPreds[nodeID] > 0 {
		if s.stopRequested {
			return nil
		}
		return []workflow.WorkflowNode{s.nodes[nodeID]}
	}

	run := s.exec.NodeRuns[nodeID]
	run.State = NodeSkipped
	s.resolved[nodeID] = NodeSkipped
	s.rc.Logger().Debug("node skipped", zap.String("node_id", nodeID))
	if s.engine.metrics != nil {
		s.engine.metrics.NodeFinished(s.nodes[nodeID].Kind, NodeSkipped, 0)
	}
	return s.resolveOutgoing(nodeID, false, nil)
}

func (s *scheduler) evalGuard(src string, snap map[string]any) (bool, error) {
	prog, err := s.engine.compileExpr(src)
	if err != nil {
		return false, err
	}
	return prog.EvalBool(snap)
}

// requestStop cancels in-flight nodes once; later ready nodes are not
// dispatched.
func (s *scheduler) requestStop(cause error) {
	if s.stopRequested {
		return
	}
	s.stopRequested = true
	s.cancelNodes(cause)
}

// finalize decides the terminal state. External cancellation wins over
// budget exhaustion, which wins over node failure. A run whose work all
// resolved cleanly completes even if a signal fired after the fact.
func (s *scheduler) finalize(parent, runCtx context.Context) error {
	for _, err := range s.errs {
		s.exec.Errors = append(s.exec.Errors, err.Error())
	}
	joined := errors.Join(s.errs...)
	interrupted := len(s.errs) > 0 || len(s.resolved) < len(s.def.Nodes)

	switch {
	case parent.Err() != nil && interrupted:
		s.exec.State = StateCancelled
		return types.NewError(types.ErrCancelled, "execution cancelled").WithCause(joined)
	case runCtx.Err() != nil && types.IsErrorCode(context.Cause(runCtx), types.ErrTimeout) && interrupted:
		s.exec.State = StateTimedOut
		return types.NewError(types.ErrTimeout, "execution timed out").WithCause(joined)
	case s.stopRequested:
		s.exec.State = StateFailed
		return types.NewError(types.ErrExecution, "execution failed").WithCause(joined)
	default:
		// Continue-strategy branch failures leave the run completed;
		// the error set is on the record.
		s.exec.State = StateCompleted
		return nil
	}
}
