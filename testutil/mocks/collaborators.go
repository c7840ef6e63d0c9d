// Package mocks provides test doubles for the executor collaborator
// interfaces.
//
// Every mock is safe for concurrent use, records its calls, and
// supports fixed responses, error injection and custom functions.
package mocks

import (
	"context"
	"sync"

	"github.com/labelmint/mintflow/executors"
)

// --- MockTaskService ---

// CreateTasksCall records one CreateTasks invocation.
type CreateTasksCall struct {
	ProjectID string
	Items     []any
}

// ReviewCall records one CreateReviewAssignments invocation.
type ReviewCall struct {
	TaskIDs  []string
	Criteria map[string]any
}

// MockTaskService is a scripted task-management collaborator.
type MockTaskService struct {
	mu sync.RWMutex

	batch       executors.TaskBatch
	reviewCount int
	err         error

	createTasksFunc func(ctx context.Context, projectID string, items []any) (executors.TaskBatch, error)

	taskCalls   []CreateTasksCall
	reviewCalls []ReviewCall
}

// NewMockTaskService creates a task service answering with an empty
// batch.
func NewMockTaskService() *MockTaskService {
	return &MockTaskService{}
}

// WithBatch scripts the batch returned by CreateTasks.
func (m *MockTaskService) WithBatch(ids ...string) *MockTaskService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = executors.TaskBatch{Count: len(ids), IDs: ids}
	return m
}

// WithReviewCount scripts the count returned by
// CreateReviewAssignments.
func (m *MockTaskService) WithReviewCount(n int) *MockTaskService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewCount = n
	return m
}

// WithError makes every call fail with err.
func (m *MockTaskService) WithError(err error) *MockTaskService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCreateTasksFunc overrides CreateTasks entirely.
func (m *MockTaskService) WithCreateTasksFunc(fn func(ctx context.Context, projectID string, items []any) (executors.TaskBatch, error)) *MockTaskService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createTasksFunc = fn
	return m
}

func (m *MockTaskService) CreateTasks(ctx context.Context, projectID string, items []any) (executors.TaskBatch, error) {
	m.mu.Lock()
	m.taskCalls = append(m.taskCalls, CreateTasksCall{ProjectID: projectID, Items: items})
	fn, batch, err := m.createTasksFunc, m.batch, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, projectID, items)
	}
	if err != nil {
		return executors.TaskBatch{}, err
	}
	return batch, nil
}

func (m *MockTaskService) CreateReviewAssignments(ctx context.Context, taskIDs []string, criteria map[string]any) (int, error) {
	m.mu.Lock()
	m.reviewCalls = append(m.reviewCalls, ReviewCall{TaskIDs: taskIDs, Criteria: criteria})
	count, err := m.reviewCount, m.err
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if count == 0 {
		count = len(taskIDs)
	}
	return count, nil
}

// TaskCalls returns the recorded CreateTasks invocations.
func (m *MockTaskService) TaskCalls() []CreateTasksCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CreateTasksCall(nil), m.taskCalls...)
}

// ReviewCalls returns the recorded review invocations.
func (m *MockTaskService) ReviewCalls() []ReviewCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ReviewCall(nil), m.reviewCalls...)
}

// --- MockHTTPCaller ---

// MockHTTPCaller is a scripted outbound HTTP collaborator.
type MockHTTPCaller struct {
	mu sync.RWMutex

	response executors.CallResponse
	err      error
	callFunc func(ctx context.Context, req executors.CallRequest) (executors.CallResponse, error)

	calls []executors.CallRequest
}

// NewMockHTTPCaller creates a caller answering 200 with a nil body.
func NewMockHTTPCaller() *MockHTTPCaller {
	return &MockHTTPCaller{response: executors.CallResponse{Status: 200}}
}

// WithResponse scripts the response.
func (m *MockHTTPCaller) WithResponse(resp executors.CallResponse) *MockHTTPCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = resp
	return m
}

// WithStatus scripts only the response status.
func (m *MockHTTPCaller) WithStatus(status int) *MockHTTPCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response.Status = status
	return m
}

// WithError makes every call fail with err.
func (m *MockHTTPCaller) WithError(err error) *MockHTTPCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCallFunc overrides Call entirely.
func (m *MockHTTPCaller) WithCallFunc(fn func(ctx context.Context, req executors.CallRequest) (executors.CallResponse, error)) *MockHTTPCaller {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callFunc = fn
	return m
}

func (m *MockHTTPCaller) Call(ctx context.Context, req executors.CallRequest) (executors.CallResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn, resp, err := m.callFunc, m.response, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return executors.CallResponse{}, err
	}
	return resp, nil
}

// Calls returns the recorded requests.
func (m *MockHTTPCaller) Calls() []executors.CallRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]executors.CallRequest(nil), m.calls...)
}

// --- MockNotifier ---

// MockNotifier records sent notifications.
type MockNotifier struct {
	mu sync.RWMutex

	err  error
	sent []executors.Notification
}

// NewMockNotifier creates a notifier that accepts everything.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// WithError makes every send fail with err.
func (m *MockNotifier) WithError(err error) *MockNotifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockNotifier) Send(_ context.Context, msg executors.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the recorded notifications.
func (m *MockNotifier) Sent() []executors.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]executors.Notification(nil), m.sent...)
}

// --- MockModelClient ---

// MockModelClient is a scripted model collaborator.
type MockModelClient struct {
	mu sync.RWMutex

	completion executors.Completion
	err        error

	requests []executors.CompletionRequest
}

// NewMockModelClient creates a client answering "mock completion".
func NewMockModelClient() *MockModelClient {
	return &MockModelClient{completion: executors.Completion{Text: "mock completion", TokensUsed: 10}}
}

// WithCompletion scripts the completion.
func (m *MockModelClient) WithCompletion(text string, tokens int) *MockModelClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = executors.Completion{Text: text, TokensUsed: tokens}
	return m
}

// WithError makes every completion fail with err.
func (m *MockModelClient) WithError(err error) *MockModelClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockModelClient) Complete(_ context.Context, req executors.CompletionRequest) (executors.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return executors.Completion{}, m.err
	}
	return m.completion, nil
}

// Requests returns the recorded completion requests.
func (m *MockModelClient) Requests() []executors.CompletionRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]executors.CompletionRequest(nil), m.requests...)
}

// --- MockRuleEvaluator ---

// MockRuleEvaluator is a scripted rule collaborator.
type MockRuleEvaluator struct {
	mu sync.RWMutex

	valid   bool
	details map[string]any
	err     error
	fn      func(ctx context.Context, rule string, input any, params map[string]any) (bool, map[string]any, error)

	rules []string
}

// NewMockRuleEvaluator creates an evaluator that accepts everything.
func NewMockRuleEvaluator() *MockRuleEvaluator {
	return &MockRuleEvaluator{valid: true}
}

// WithResult scripts the verdict and its diagnostics.
func (m *MockRuleEvaluator) WithResult(valid bool, details map[string]any) *MockRuleEvaluator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = valid
	m.details = details
	return m
}

// WithError makes every evaluation fail with err.
func (m *MockRuleEvaluator) WithError(err error) *MockRuleEvaluator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithEvaluateFunc overrides EvaluateRule entirely.
func (m *MockRuleEvaluator) WithEvaluateFunc(fn func(ctx context.Context, rule string, input any, params map[string]any) (bool, map[string]any, error)) *MockRuleEvaluator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

func (m *MockRuleEvaluator) EvaluateRule(ctx context.Context, rule string, input any, params map[string]any) (bool, map[string]any, error) {
	m.mu.Lock()
	m.rules = append(m.rules, rule)
	fn, valid, details, err := m.fn, m.valid, m.details, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, rule, input, params)
	}
	if err != nil {
		return false, nil, err
	}
	return valid, details, nil
}

// Rules returns the rule names evaluated so far.
func (m *MockRuleEvaluator) Rules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.rules...)
}

// --- MockDatabase ---

// QueryCall records one database invocation.
type QueryCall struct {
	Query string
	Args  []any
}

// MockDatabase is a scripted database collaborator.
type MockDatabase struct {
	mu sync.RWMutex

	rows     []map[string]any
	affected int64
	err      error

	calls []QueryCall
}

// NewMockDatabase creates a database answering with no rows.
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{}
}

// WithRows scripts the query result.
func (m *MockDatabase) WithRows(rows ...map[string]any) *MockDatabase {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
	return m
}

// WithAffected scripts the exec result.
func (m *MockDatabase) WithAffected(n int64) *MockDatabase {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.affected = n
	return m
}

// WithError makes every call fail with err.
func (m *MockDatabase) WithError(err error) *MockDatabase {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockDatabase) Query(_ context.Context, query string, args ...any) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, QueryCall{Query: query, Args: args})
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func (m *MockDatabase) Exec(_ context.Context, query string, args ...any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, QueryCall{Query: query, Args: args})
	if m.err != nil {
		return 0, m.err
	}
	return m.affected, nil
}

// Calls returns the recorded invocations.
func (m *MockDatabase) Calls() []QueryCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]QueryCall(nil), m.calls...)
}
