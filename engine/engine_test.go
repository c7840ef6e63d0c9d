package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// ---------------------------------------------------------------------------
// Mock helpers
// ---------------------------------------------------------------------------

// stubExecutor returns scripted output, with optional delay, error and
// call tracking.
type stubExecutor struct {
	output map[string]any
	err    error
	delay  time.Duration
	fn     func(ctx context.Context, node workflow.WorkflowNode, rc *RunContext) (NodeResult, error)

	calls atomic.Int32

	mu        sync.Mutex
	callTimes []time.Time
}

func (s *stubExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *RunContext) (NodeResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.callTimes = append(s.callTimes, time.Now())
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(ctx, node, rc)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return NodeResult{}, causeError(ctx)
		}
	}
	if s.err != nil {
		return NodeResult{}, s.err
	}
	return NodeResult{Output: s.output}, nil
}

func (s *stubExecutor) gaps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gaps []time.Duration
	for i := 1; i < len(s.callTimes); i++ {
		gaps = append(gaps, s.callTimes[i].Sub(s.callTimes[i-1]))
	}
	return gaps
}

func registryFor(execs map[workflow.NodeKind]NodeExecutor) *Registry {
	reg := NewRegistry()
	for kind, ex := range execs {
		reg.Register(kind, ex)
	}
	return reg
}

func testNode(id string, kind workflow.NodeKind, cfg workflow.NodeConfig) workflow.WorkflowNode {
	return workflow.WorkflowNode{ID: id, Kind: kind, Label: id, Config: cfg}
}

func manualTrigger(id string) workflow.WorkflowNode {
	return testNode(id, workflow.KindTrigger, &workflow.TriggerConfig{Type: workflow.TriggerManual})
}

func customTask(id string) workflow.WorkflowNode {
	return testNode(id, workflow.KindTask, &workflow.TaskConfig{Type: workflow.TaskCustom, Function: "noop"})
}

func testEdge(source, target string) workflow.WorkflowEdge {
	return workflow.WorkflowEdge{ID: source + "-" + target, Source: source, Target: target}
}

func guardedEdge(source, target, guard string) workflow.WorkflowEdge {
	e := testEdge(source, target)
	e.Guard = guard
	return e
}

func testDefinition(nodes []workflow.WorkflowNode, edges []workflow.WorkflowEdge) *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		ID:      "def-test",
		Name:    "test workflow",
		Version: 1,
		Nodes:   nodes,
		Edges:   edges,
		Settings: workflow.WorkflowSettings{
			Retry:         workflow.RetryPolicy{MaxAttempts: 1, Backoff: workflow.BackoffFixed},
			ErrorHandling: workflow.ErrorHandling{Strategy: workflow.StrategyStop},
		},
	}
}

// ---------------------------------------------------------------------------
// Run — basic flow
// ---------------------------------------------------------------------------

func TestEngine_Run_NilDefinition(t *testing.T) {
	t.Parallel()
	eng := New(NewRegistry())
	_, err := eng.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrStructural, types.GetErrorCode(err))
}

func TestEngine_Run_LinearChain(t *testing.T) {
	t.Parallel()
	triggerExec := &stubExecutor{output: map[string]any{"triggered": true}}
	taskExec := &stubExecutor{output: map[string]any{"count": 3}}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: triggerExec,
		workflow.KindTask:    taskExec,
	}), WithLogger(zap.NewNop()))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.Equal(t, int32(1), triggerExec.calls.Load())
	assert.Equal(t, int32(1), taskExec.calls.Load())

	work := exec.NodeRuns["work"]
	require.NotNil(t, work)
	assert.Equal(t, NodeCompleted, work.State)
	assert.Equal(t, 1, work.Attempts)
	assert.Equal(t, map[string]any{"count": 3}, work.Output)
	assert.Empty(t, exec.Errors)

	// Node outputs surface in the final variable snapshot keyed by id.
	snap, ok := exec.Variables["work"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, snap["count"])
}

func TestEngine_Run_OutputVisibleToSuccessor(t *testing.T) {
	t.Parallel()
	var seen any
	var seenOK bool
	triggerExec := &stubExecutor{output: map[string]any{"ok": true}}
	taskExec := &stubExecutor{fn: func(_ context.Context, _ workflow.WorkflowNode, rc *RunContext) (NodeResult, error) {
		seen, seenOK = rc.Output("start")
		return NodeResult{}, nil
	}}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: triggerExec,
		workflow.KindTask:    taskExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	require.True(t, seenOK)
	assert.Equal(t, map[string]any{"ok": true}, seen)
}

func TestEngine_Run_NoExecutorRegistered(t *testing.T) {
	t.Parallel()
	triggerExec := &stubExecutor{}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(5 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: triggerExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)

	work := exec.NodeRuns["work"]
	assert.Equal(t, NodeFailed, work.State)
	assert.Contains(t, work.Error, "no executor registered")
	// A missing executor is not a transient fault; no retry happens.
	assert.Equal(t, 1, work.Attempts)
}

// ---------------------------------------------------------------------------
// Join semantics
// ---------------------------------------------------------------------------

func TestEngine_Run_FanOutFanIn_JoinWaitsForAllBranches(t *testing.T) {
	t.Parallel()
	slowExec := &stubExecutor{output: map[string]any{"from": "slow"}, delay: 40 * time.Millisecond}
	var sawSlow, sawFast bool
	joinExec := &stubExecutor{fn: func(_ context.Context, _ workflow.WorkflowNode, rc *RunContext) (NodeResult, error) {
		_, sawSlow = rc.Output("slow")
		_, sawFast = rc.Output("fast")
		return NodeResult{Output: map[string]any{"joined": true}}, nil
	}}

	nodes := []workflow.WorkflowNode{
		manualTrigger("start"),
		customTask("slow"),
		customTask("fast"),
		testNode("join", workflow.KindTransform, &workflow.TransformConfig{Expression: "slow.from == 'slow'"}),
	}
	edges := []workflow.WorkflowEdge{
		testEdge("start", "slow"),
		testEdge("start", "fast"),
		testEdge("slow", "join"),
		testEdge("fast", "join"),
	}
	def := testDefinition(nodes, edges)

	taskExec := &stubExecutor{fn: func(ctx context.Context, node workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		if node.ID == "slow" {
			return slowExec.Execute(ctx, node, nil)
		}
		return NodeResult{Output: map[string]any{"from": "fast"}}, nil
	}}
	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger:   &stubExecutor{},
		workflow.KindTask:      taskExec,
		workflow.KindTransform: joinExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.Equal(t, int32(1), joinExec.calls.Load())
	assert.True(t, sawSlow, "join ran before the slow branch finished")
	assert.True(t, sawFast, "join ran before the fast branch finished")
	assert.Equal(t, 4, exec.CountNodes(NodeCompleted))
}

// ---------------------------------------------------------------------------
// Condition routing
// ---------------------------------------------------------------------------

func conditionDefinition() *workflow.WorkflowDefinition {
	nodes := []workflow.WorkflowNode{
		manualTrigger("start"),
		testNode("cond", workflow.KindCondition, &workflow.ConditionConfig{Expression: "true"}),
		customTask("yes"),
		customTask("no"),
		customTask("merge"),
	}
	edges := []workflow.WorkflowEdge{
		testEdge("start", "cond"),
		guardedEdge("cond", "yes", "cond.result == true"),
		guardedEdge("cond", "no", "cond.result == false"),
		testEdge("yes", "merge"),
		testEdge("no", "merge"),
	}
	return testDefinition(nodes, edges)
}

func TestEngine_Run_ConditionRoutesExactlyOneBranch(t *testing.T) {
	t.Parallel()
	for _, result := range []bool{true, false} {
		condExec := &stubExecutor{output: map[string]any{"result": result}}
		yesCalls := &atomic.Int32{}
		noCalls := &atomic.Int32{}
		taskExec := &stubExecutor{fn: func(_ context.Context, node workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
			switch node.ID {
			case "yes":
				yesCalls.Add(1)
			case "no":
				noCalls.Add(1)
			}
			return NodeResult{}, nil
		}}

		eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
			workflow.KindTrigger:   &stubExecutor{},
			workflow.KindCondition: condExec,
			workflow.KindTask:      taskExec,
		}))

		exec, err := eng.Run(context.Background(), conditionDefinition())
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, exec.State)

		if result {
			assert.Equal(t, int32(1), yesCalls.Load())
			assert.Equal(t, int32(0), noCalls.Load())
			assert.Equal(t, NodeCompleted, exec.NodeRuns["yes"].State)
			assert.Equal(t, NodeSkipped, exec.NodeRuns["no"].State)
		} else {
			assert.Equal(t, int32(0), yesCalls.Load())
			assert.Equal(t, int32(1), noCalls.Load())
			assert.Equal(t, NodeSkipped, exec.NodeRuns["yes"].State)
			assert.Equal(t, NodeCompleted, exec.NodeRuns["no"].State)
		}
		// The merge node still runs: one incoming edge fired.
		assert.Equal(t, NodeCompleted, exec.NodeRuns["merge"].State)
	}
}

func TestEngine_Run_SkipCascadesThroughUnchosenBranch(t *testing.T) {
	t.Parallel()
	nodes := []workflow.WorkflowNode{
		manualTrigger("start"),
		testNode("cond", workflow.KindCondition, &workflow.ConditionConfig{Expression: "true"}),
		customTask("chosen"),
		customTask("dropped"),
		customTask("after_dropped"),
	}
	edges := []workflow.WorkflowEdge{
		testEdge("start", "cond"),
		guardedEdge("cond", "chosen", "cond.result == true"),
		guardedEdge("cond", "dropped", "cond.result == false"),
		testEdge("dropped", "after_dropped"),
	}
	def := testDefinition(nodes, edges)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger:   &stubExecutor{},
		workflow.KindCondition: &stubExecutor{output: map[string]any{"result": true}},
		workflow.KindTask:      &stubExecutor{},
	}))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.Equal(t, NodeCompleted, exec.NodeRuns["chosen"].State)
	assert.Equal(t, NodeSkipped, exec.NodeRuns["dropped"].State)
	assert.Equal(t, NodeSkipped, exec.NodeRuns["after_dropped"].State)
}

// ---------------------------------------------------------------------------
// Error handling strategies
// ---------------------------------------------------------------------------

func TestEngine_Run_StopStrategyFailsRun(t *testing.T) {
	t.Parallel()
	failing := &stubExecutor{err: errors.New("upstream rejected the batch")}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work"), customTask("after")},
		[]workflow.WorkflowEdge{testEdge("start", "work"), testEdge("work", "after")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    failing,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, types.ErrExecution, types.GetErrorCode(err))
	assert.Equal(t, StateFailed, exec.State)
	assert.Equal(t, NodeFailed, exec.NodeRuns["work"].State)
	assert.Contains(t, exec.NodeRuns["work"].Error, "upstream rejected the batch")
	assert.Equal(t, NodeSkipped, exec.NodeRuns["after"].State)
	assert.Len(t, exec.Errors, 1)
}

func TestEngine_Run_ContinueStrategyIsolatesFailedBranch(t *testing.T) {
	t.Parallel()
	taskExec := &stubExecutor{fn: func(_ context.Context, node workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		if node.ID == "bad" {
			return NodeResult{}, errors.New("branch exploded")
		}
		return NodeResult{Output: map[string]any{"node": node.ID}}, nil
	}}
	nodes := []workflow.WorkflowNode{
		manualTrigger("start"),
		customTask("bad"),
		customTask("after_bad"),
		customTask("good"),
		customTask("after_good"),
	}
	edges := []workflow.WorkflowEdge{
		testEdge("start", "bad"),
		testEdge("bad", "after_bad"),
		testEdge("start", "good"),
		testEdge("good", "after_good"),
	}
	def := testDefinition(nodes, edges)
	def.Settings.ErrorHandling.Strategy = workflow.StrategyContinue

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    taskExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	// Isolated branch failures leave the run completed; the error set
	// is preserved on the record.
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.Equal(t, NodeFailed, exec.NodeRuns["bad"].State)
	assert.Equal(t, NodeSkipped, exec.NodeRuns["after_bad"].State)
	assert.Equal(t, NodeCompleted, exec.NodeRuns["good"].State)
	assert.Equal(t, NodeCompleted, exec.NodeRuns["after_good"].State)
	assert.Len(t, exec.Errors, 1)
	assert.Contains(t, exec.Errors[0], "branch exploded")
}

func TestEngine_Run_FatalErrorEndsRunUnderContinue(t *testing.T) {
	t.Parallel()
	fatal := &stubExecutor{err: types.NewError(types.ErrTimeout, "collaborator deadline blown")}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work"), customTask("after")},
		[]workflow.WorkflowEdge{testEdge("start", "work"), testEdge("work", "after")},
	)
	def.Settings.ErrorHandling.Strategy = workflow.StrategyContinue
	def.Settings.Retry.MaxAttempts = 3

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    fatal,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)
	// Fatal errors are never retried, strategy notwithstanding.
	assert.Equal(t, 1, exec.NodeRuns["work"].Attempts)
	assert.Equal(t, int32(1), fatal.calls.Load())
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

func TestEngine_Run_RetryExponentialBackoff(t *testing.T) {
	t.Parallel()
	failing := &stubExecutor{err: errors.New("transient fault")}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      workflow.BackoffExponential,
		InitialDelay: workflow.Duration(100 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    failing,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)
	assert.Equal(t, int32(3), failing.calls.Load())
	assert.Equal(t, 3, exec.NodeRuns["work"].Attempts)

	gaps := failing.gaps()
	require.Len(t, gaps, 2)
	assert.GreaterOrEqual(t, gaps[0], 100*time.Millisecond)
	assert.Less(t, gaps[0], 300*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 200*time.Millisecond)
	assert.Less(t, gaps[1], 500*time.Millisecond)
}

func TestEngine_Run_RetryFixedBackoff(t *testing.T) {
	t.Parallel()
	failing := &stubExecutor{err: errors.New("transient fault")}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(40 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    failing,
	}))

	_, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, int32(3), failing.calls.Load())
	for _, gap := range failing.gaps() {
		assert.GreaterOrEqual(t, gap, 40*time.Millisecond)
		assert.Less(t, gap, 200*time.Millisecond)
	}
}

func TestEngine_Run_RetrySucceedsMidway(t *testing.T) {
	t.Parallel()
	flaky := &stubExecutor{}
	flaky.fn = func(_ context.Context, _ workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		if flaky.calls.Load() == 1 {
			return NodeResult{}, errors.New("first attempt failed")
		}
		return NodeResult{Output: map[string]any{"done": true}}, nil
	}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(10 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    flaky,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.Equal(t, int32(2), flaky.calls.Load())
	assert.Equal(t, 2, exec.NodeRuns["work"].Attempts)
	assert.Equal(t, NodeCompleted, exec.NodeRuns["work"].State)
	assert.Empty(t, exec.Errors)
}

func TestEngine_Run_InvalidConfigNotRetried(t *testing.T) {
	t.Parallel()
	validationExec := &stubExecutor{}
	def := testDefinition(
		[]workflow.WorkflowNode{
			manualTrigger("start"),
			testNode("check", workflow.KindValidation, &workflow.ValidationConfig{Rule: "consensus", MinConsensus: 0}),
		},
		[]workflow.WorkflowEdge{testEdge("start", "check")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  3,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(5 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger:    &stubExecutor{},
		workflow.KindValidation: validationExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)
	assert.Equal(t, 1, exec.NodeRuns["check"].Attempts)
	assert.Contains(t, exec.NodeRuns["check"].Error, "min_consensus")
	// The executor never runs when the configuration is rejected.
	assert.Equal(t, int32(0), validationExec.calls.Load())
}

func TestEngine_Run_InputRulesCheckedBeforeExecution(t *testing.T) {
	t.Parallel()
	taskExec := &stubExecutor{}
	guardedNode := customTask("work")
	guardedNode.Rules = []workflow.ValidationRule{
		{Field: "start.items", Type: workflow.RuleNonEmpty, Message: "trigger produced no items"},
	}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), guardedNode},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{output: map[string]any{"items": []any{}}},
		workflow.KindTask:    taskExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)
	assert.Contains(t, exec.NodeRuns["work"].Error, "trigger produced no items")
	assert.Equal(t, int32(0), taskExec.calls.Load())
}

// ---------------------------------------------------------------------------
// Timeout and cancellation
// ---------------------------------------------------------------------------

func TestEngine_Run_OverallTimeoutBudget(t *testing.T) {
	t.Parallel()
	slow := &stubExecutor{delay: time.Second}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Timeout = workflow.Duration(80 * time.Millisecond)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    slow,
	}))

	started := time.Now()
	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.Equal(t, StateTimedOut, exec.State)
	assert.Equal(t, NodeFailed, exec.NodeRuns["work"].State)
	assert.Contains(t, exec.NodeRuns["work"].Error, "budget")
	assert.Less(t, time.Since(started), 600*time.Millisecond)
}

func TestEngine_Run_ExternalCancellation(t *testing.T) {
	t.Parallel()
	slow := &stubExecutor{delay: time.Second}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    slow,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(40 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	exec, err := eng.Run(ctx, def)
	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	assert.Equal(t, StateCancelled, exec.State)
	assert.Equal(t, NodeCancelled, exec.NodeRuns["work"].State)
	assert.Less(t, time.Since(started), 600*time.Millisecond)
}

func TestEngine_Run_CancellationBeatsRetry(t *testing.T) {
	t.Parallel()
	failing := &stubExecutor{err: errors.New("transient fault")}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  5,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(200 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    failing,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	exec, err := eng.Run(ctx, def)
	require.Error(t, err)
	assert.Equal(t, StateCancelled, exec.State)
	// Cancellation interrupts the backoff pause; no fifth attempt.
	assert.Less(t, failing.calls.Load(), int32(3))
}

// ---------------------------------------------------------------------------
// Guarded edges
// ---------------------------------------------------------------------------

func TestEngine_Run_GuardReadsSourceOutput(t *testing.T) {
	t.Parallel()
	nodes := []workflow.WorkflowNode{
		manualTrigger("start"),
		customTask("score"),
		customTask("high"),
		customTask("low"),
	}
	edges := []workflow.WorkflowEdge{
		testEdge("start", "score"),
		guardedEdge("score", "high", "score.value > 5"),
		guardedEdge("score", "low", "score.value <= 5"),
	}
	def := testDefinition(nodes, edges)

	taskExec := &stubExecutor{fn: func(_ context.Context, node workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		if node.ID == "score" {
			return NodeResult{Output: map[string]any{"value": 7}}, nil
		}
		return NodeResult{}, nil
	}}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    taskExec,
	}))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, NodeCompleted, exec.NodeRuns["high"].State)
	assert.Equal(t, NodeSkipped, exec.NodeRuns["low"].State)
}

func TestEngine_Run_GuardEvaluationErrorUnderStop(t *testing.T) {
	t.Parallel()
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{guardedEdge("start", "work", "start.value >")},
	)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    &stubExecutor{},
	}))

	exec, err := eng.Run(context.Background(), def)
	require.Error(t, err)
	assert.Equal(t, StateFailed, exec.State)
	require.Len(t, exec.Errors, 1)
	assert.Contains(t, exec.Errors[0], "guard")
	// The target never fires on an unevaluable guard.
	assert.Equal(t, NodeSkipped, exec.NodeRuns["work"].State)
}

// ---------------------------------------------------------------------------
// Variables and run options
// ---------------------------------------------------------------------------

func TestEngine_Run_VariableSeeding(t *testing.T) {
	t.Parallel()
	var env, region, payload any
	triggerExec := &stubExecutor{fn: func(_ context.Context, _ workflow.WorkflowNode, rc *RunContext) (NodeResult, error) {
		env, _ = rc.Variable("env")
		region, _ = rc.Variable("region")
		payload, _ = rc.Variable("payload")
		return NodeResult{}, nil
	}}
	def := testDefinition([]workflow.WorkflowNode{manualTrigger("start")}, nil)
	def.Variables = []workflow.WorkflowVariable{
		{ID: "v1", Name: "env", Type: workflow.ValueString, Default: "staging"},
		{ID: "v2", Name: "region", Type: workflow.ValueString, Default: "eu-west"},
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: triggerExec,
	}))

	exec, err := eng.Run(context.Background(), def,
		WithVariables(map[string]any{"env": "production"}),
		WithTriggerPayload(map[string]any{"item": "doc-1"}),
	)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	// Run-supplied values override declared defaults.
	assert.Equal(t, "production", env)
	assert.Equal(t, "eu-west", region)
	assert.Equal(t, map[string]any{"item": "doc-1"}, payload)
}

// ---------------------------------------------------------------------------
// Recorder, metrics and alerter
// ---------------------------------------------------------------------------

type chanRecorder struct {
	ch chan *Execution
}

func (r *chanRecorder) RecordExecution(_ context.Context, exec *Execution) error {
	r.ch <- exec
	return nil
}

type chanAlerter struct {
	ch chan *Execution
}

func (a *chanAlerter) Alert(_ context.Context, exec *Execution) error {
	a.ch <- exec
	return nil
}

type countingMetrics struct {
	started  atomic.Int32
	finished atomic.Int32
	nodes    atomic.Int32
	retries  atomic.Int32
}

func (m *countingMetrics) ExecutionStarted() { m.started.Add(1) }
func (m *countingMetrics) ExecutionFinished(ExecutionState, time.Duration) {
	m.finished.Add(1)
}
func (m *countingMetrics) NodeFinished(workflow.NodeKind, NodeState, time.Duration) {
	m.nodes.Add(1)
}
func (m *countingMetrics) NodeRetried(workflow.NodeKind) { m.retries.Add(1) }

func TestEngine_Run_RecorderReceivesFinishedExecution(t *testing.T) {
	t.Parallel()
	rec := &chanRecorder{ch: make(chan *Execution, 1)}
	def := testDefinition([]workflow.WorkflowNode{manualTrigger("start")}, nil)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
	}), WithRecorder(rec))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)

	select {
	case recorded := <-rec.ch:
		assert.Equal(t, exec.ID, recorded.ID)
		assert.Equal(t, StateCompleted, recorded.State)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder was never called")
	}
}

func TestEngine_Run_MetricsObserved(t *testing.T) {
	t.Parallel()
	metrics := &countingMetrics{}
	flaky := &stubExecutor{}
	flaky.fn = func(_ context.Context, _ workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		if flaky.calls.Load() == 1 {
			return NodeResult{}, errors.New("transient fault")
		}
		return NodeResult{}, nil
	}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.Retry = workflow.RetryPolicy{
		MaxAttempts:  2,
		Backoff:      workflow.BackoffFixed,
		InitialDelay: workflow.Duration(5 * time.Millisecond),
	}

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    flaky,
	}), WithMetrics(metrics))

	_, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, int32(1), metrics.started.Load())
	assert.Equal(t, int32(1), metrics.finished.Load())
	assert.Equal(t, int32(2), metrics.nodes.Load())
	assert.Equal(t, int32(1), metrics.retries.Load())
}

func TestEngine_Run_AlerterNotifiedOnFailure(t *testing.T) {
	t.Parallel()
	alerter := &chanAlerter{ch: make(chan *Execution, 1)}
	def := testDefinition(
		[]workflow.WorkflowNode{manualTrigger("start"), customTask("work")},
		[]workflow.WorkflowEdge{testEdge("start", "work")},
	)
	def.Settings.ErrorHandling.AlertOnError = true

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    &stubExecutor{err: errors.New("boom")},
	}), WithAlerter(alerter))

	_, err := eng.Run(context.Background(), def)
	require.Error(t, err)

	select {
	case alerted := <-alerter.ch:
		assert.Equal(t, StateFailed, alerted.State)
	case <-time.After(2 * time.Second):
		t.Fatal("alerter was never called")
	}
}

// ---------------------------------------------------------------------------
// Parallelism bound
// ---------------------------------------------------------------------------

func TestEngine_Run_MaxParallelBoundsConcurrency(t *testing.T) {
	t.Parallel()
	var active, peak atomic.Int32
	taskExec := &stubExecutor{fn: func(_ context.Context, _ workflow.WorkflowNode, _ *RunContext) (NodeResult, error) {
		now := active.Add(1)
		for {
			p := peak.Load()
			if now <= p || peak.CompareAndSwap(p, now) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return NodeResult{}, nil
	}}

	nodes := []workflow.WorkflowNode{manualTrigger("start")}
	var edges []workflow.WorkflowEdge
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		nodes = append(nodes, customTask(id))
		edges = append(edges, testEdge("start", id))
	}
	def := testDefinition(nodes, edges)

	eng := New(registryFor(map[workflow.NodeKind]NodeExecutor{
		workflow.KindTrigger: &stubExecutor{},
		workflow.KindTask:    taskExec,
	}), WithMaxParallel(2))

	exec, err := eng.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, exec.State)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
