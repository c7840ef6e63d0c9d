package workflow

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/labelmint/mintflow/workflow/expr"
)

// NodeConfig is the kind-specific configuration payload of a node.
// Validate reports every structural problem with the payload; it runs at
// build time and again, defensively, before each execution.
type NodeConfig interface {
	Kind() NodeKind
	Validate() error
}

// TriggerType selects how a trigger node fires.
type TriggerType string

const (
	// TriggerManual fires immediately with a triggered-by marker
	TriggerManual TriggerType = "manual"
	// TriggerSchedule fires with the configured recurrence descriptor
	TriggerSchedule TriggerType = "schedule"
	// TriggerWebhook fires with the inbound payload already in context
	TriggerWebhook TriggerType = "webhook"
	// TriggerEvent fires with the inbound event payload
	TriggerEvent TriggerType = "event"
)

// TriggerConfig configures a trigger node.
type TriggerConfig struct {
	Type TriggerType `json:"type" yaml:"type"`
	// Recurrence is the schedule descriptor (schedule triggers)
	Recurrence string `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	// Path and Verb identify the inbound hook (webhook triggers)
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Verb string `json:"verb,omitempty" yaml:"verb,omitempty"`
	// EventType and EventSource identify the inbound event (event triggers)
	EventType   string `json:"event_type,omitempty" yaml:"event_type,omitempty"`
	EventSource string `json:"event_source,omitempty" yaml:"event_source,omitempty"`
}

func (c *TriggerConfig) Kind() NodeKind { return KindTrigger }

func (c *TriggerConfig) Validate() error {
	switch c.Type {
	case TriggerManual:
		return nil
	case TriggerSchedule:
		if c.Recurrence == "" {
			return errors.New("schedule trigger requires a recurrence expression")
		}
	case TriggerWebhook:
		var errs []error
		if c.Path == "" {
			errs = append(errs, errors.New("webhook trigger requires a path"))
		}
		if c.Verb == "" {
			errs = append(errs, errors.New("webhook trigger requires a verb"))
		}
		return errors.Join(errs...)
	case TriggerEvent:
		var errs []error
		if c.EventType == "" {
			errs = append(errs, errors.New("event trigger requires an event type"))
		}
		if c.EventSource == "" {
			errs = append(errs, errors.New("event trigger requires an event source"))
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown trigger type %q", c.Type)
	}
	return nil
}

// TaskType selects how a task node creates work items.
type TaskType string

const (
	// TaskLabeling bulk-creates labeling tasks against a project
	TaskLabeling TaskType = "labeling"
	// TaskReview creates one review assignment per input task id
	TaskReview TaskType = "review"
	// TaskValidation delegates to a pluggable rule evaluator
	TaskValidation TaskType = "validation"
	// TaskCustom invokes a named, pre-registered pure function
	TaskCustom TaskType = "custom"
)

// TaskConfig configures a task node.
type TaskConfig struct {
	Type TaskType `json:"type" yaml:"type"`
	// ProjectID is the project labeling tasks are created against
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	// ItemsFrom is a dotted context path to the items to create tasks for
	ItemsFrom string `json:"items_from,omitempty" yaml:"items_from,omitempty"`
	// TaskIDsFrom is a dotted context path to the task ids to review
	TaskIDsFrom string `json:"task_ids_from,omitempty" yaml:"task_ids_from,omitempty"`
	// Criteria parameterizes review assignments
	Criteria map[string]any `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	// Rule names the evaluator rule (validation tasks)
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`
	// Function names the registered pure function (custom tasks)
	Function string `json:"function,omitempty" yaml:"function,omitempty"`
}

func (c *TaskConfig) Kind() NodeKind { return KindTask }

func (c *TaskConfig) Validate() error {
	switch c.Type {
	case TaskLabeling:
		if c.ProjectID == "" {
			return errors.New("labeling task requires a project id")
		}
	case TaskReview:
		if c.TaskIDsFrom == "" {
			return errors.New("review task requires a task ids reference")
		}
	case TaskValidation:
		if c.Rule == "" {
			return errors.New("validation task requires a rule name")
		}
	case TaskCustom:
		if c.Function == "" {
			return errors.New("custom task requires a function name")
		}
	default:
		return fmt.Errorf("unknown task type %q", c.Type)
	}
	return nil
}

// ValidationConfig configures a validation node. Rule names a check the
// rule evaluator collaborator owns ("consensus"); Rules are inline
// field constraints evaluated by the engine itself.
type ValidationConfig struct {
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`
	// MinConsensus is the minimum agreeing annotations for the consensus rule
	MinConsensus int `json:"min_consensus,omitempty" yaml:"min_consensus,omitempty"`
	// Rules are inline field constraints
	Rules []ValidationRule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// InputFrom is a dotted context path to the validated data; empty
	// means the merged context snapshot
	InputFrom string `json:"input_from,omitempty" yaml:"input_from,omitempty"`
}

func (c *ValidationConfig) Kind() NodeKind { return KindValidation }

func (c *ValidationConfig) Validate() error {
	if c.Rule == "" && len(c.Rules) == 0 {
		return errors.New("validation requires a rule name or inline rules")
	}
	if c.Rule == "consensus" && c.MinConsensus < 1 {
		return errors.New("consensus validation requires min_consensus >= 1")
	}
	for i, r := range c.Rules {
		if r.Field == "" {
			return fmt.Errorf("inline rule %d is missing a field path", i)
		}
	}
	return nil
}

// AuthType selects how the HTTP caller authenticates a request.
type AuthType string

const (
	AuthNone AuthType = "none"
	// AuthBearer attaches a static bearer token
	AuthBearer AuthType = "bearer"
	// AuthBasic attaches basic credentials
	AuthBasic AuthType = "basic"
	// AuthSigned attaches a short-lived HMAC-signed token
	AuthSigned AuthType = "signed"
)

// AuthConfig holds authentication material attached to outbound calls as
// headers, never interpreted by the engine itself.
type AuthConfig struct {
	Type     AuthType `json:"type" yaml:"type"`
	Token    string   `json:"token,omitempty" yaml:"token,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	// Secret signs short-lived tokens for the signed mode
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	// Issuer names the token issuer for the signed mode
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	// TTL bounds the signed token's validity
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

func (a *AuthConfig) validate() error {
	switch a.Type {
	case "", AuthNone:
		return nil
	case AuthBearer:
		if a.Token == "" {
			return errors.New("bearer auth requires a token")
		}
	case AuthBasic:
		if a.Username == "" {
			return errors.New("basic auth requires a username")
		}
	case AuthSigned:
		if a.Secret == "" {
			return errors.New("signed auth requires a secret")
		}
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

// IntegrationConfig configures an integration node dispatching to a
// provider/service/action triple.
type IntegrationConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Service  string `json:"service" yaml:"service"`
	Action   string `json:"action" yaml:"action"`
	// Endpoint is the target URL for the generic http provider
	Endpoint string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method   string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     any               `json:"body,omitempty" yaml:"body,omitempty"`
	Auth     *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
	Timeout  Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (c *IntegrationConfig) Kind() NodeKind { return KindIntegration }

func (c *IntegrationConfig) Validate() error {
	var errs []error
	if c.Provider == "" {
		errs = append(errs, errors.New("integration requires a provider"))
	}
	if c.Service == "" {
		errs = append(errs, errors.New("integration requires a service"))
	}
	if c.Action == "" {
		errs = append(errs, errors.New("integration requires an action"))
	}
	if c.Provider == "http" {
		if c.Endpoint == "" {
			errs = append(errs, errors.New("http integration requires an endpoint url"))
		} else if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid endpoint url: %w", err))
		}
	}
	if c.Auth != nil {
		if err := c.Auth.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AIConfig configures an AI operation node.
type AIConfig struct {
	Model string `json:"model" yaml:"model"`
	// Prompt is a literal prompt; PromptFrom resolves it from context
	Prompt     string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	PromptFrom string `json:"prompt_from,omitempty" yaml:"prompt_from,omitempty"`
	// MaxTokens caps the completion length
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// TokenBudget caps the prompt size; 0 disables the check
	TokenBudget int `json:"token_budget,omitempty" yaml:"token_budget,omitempty"`
}

func (c *AIConfig) Kind() NodeKind { return KindAI }

func (c *AIConfig) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("ai operation requires a model"))
	}
	if c.Prompt == "" && c.PromptFrom == "" {
		errs = append(errs, errors.New("ai operation requires a prompt or prompt reference"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	return errors.Join(errs...)
}

// ConditionConfig configures a condition node.
type ConditionConfig struct {
	// Expression is a boolean guard over context variables
	Expression string `json:"expression" yaml:"expression"`
}

func (c *ConditionConfig) Kind() NodeKind { return KindCondition }

func (c *ConditionConfig) Validate() error {
	if c.Expression == "" {
		return errors.New("condition requires an expression")
	}
	if _, err := expr.Parse(c.Expression); err != nil {
		return fmt.Errorf("invalid condition expression: %w", err)
	}
	return nil
}

// DelayMode selects how a delay node computes its wait.
type DelayMode string

const (
	// DelayFixed waits a literal duration in a declared unit
	DelayFixed DelayMode = "fixed"
	// DelayUntil waits until an absolute timestamp, zero if already past
	DelayUntil DelayMode = "until"
	// DelayUntilCondition polls an expression up to a maximum wait
	DelayUntilCondition DelayMode = "until_condition"
)

// DelayConfig configures a delay node.
type DelayConfig struct {
	Mode DelayMode `json:"mode" yaml:"mode"`
	// Duration and Unit define the fixed wait ("ms", "s", "m", "h")
	Duration int    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Unit     string `json:"unit,omitempty" yaml:"unit,omitempty"`
	// Until is the absolute wake-up time
	Until time.Time `json:"until,omitempty" yaml:"until,omitempty"`
	// Condition is polled every PollInterval up to MaxWait
	Condition    string   `json:"condition,omitempty" yaml:"condition,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	MaxWait      Duration `json:"max_wait,omitempty" yaml:"max_wait,omitempty"`
}

func (c *DelayConfig) Kind() NodeKind { return KindDelay }

func (c *DelayConfig) Validate() error {
	switch c.Mode {
	case DelayFixed:
		var errs []error
		if c.Duration <= 0 {
			errs = append(errs, errors.New("fixed delay requires a positive duration"))
		}
		if _, err := unitDuration(1, c.Unit); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	case DelayUntil:
		if c.Until.IsZero() {
			return errors.New("until delay requires a timestamp")
		}
	case DelayUntilCondition:
		var errs []error
		if c.Condition == "" {
			errs = append(errs, errors.New("until-condition delay requires a condition"))
		} else if _, err := expr.Parse(c.Condition); err != nil {
			errs = append(errs, fmt.Errorf("invalid delay condition: %w", err))
		}
		if c.MaxWait <= 0 {
			errs = append(errs, errors.New("until-condition delay requires a positive max wait"))
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown delay mode %q", c.Mode)
	}
	return nil
}

// Wait returns the wait the fixed mode declares.
func (c *DelayConfig) Wait() (time.Duration, error) {
	return unitDuration(c.Duration, c.Unit)
}

func unitDuration(n int, unit string) (time.Duration, error) {
	switch unit {
	case "ms", "":
		return time.Duration(n) * time.Millisecond, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown delay unit %q", unit)
	}
}

// HTTPRequestConfig configures an http_request node.
type HTTPRequestConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any               `json:"body,omitempty" yaml:"body,omitempty"`
	Auth    *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (c *HTTPRequestConfig) Kind() NodeKind { return KindHTTPRequest }

func (c *HTTPRequestConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("http request requires a url"))
	} else if _, err := url.ParseRequestURI(c.URL); err != nil {
		errs = append(errs, fmt.Errorf("invalid url: %w", err))
	}
	if c.Auth != nil {
		if err := c.Auth.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailConfig configures an email node. Channel defaults to "email";
// the notification collaborator owns delivery.
type EmailConfig struct {
	Channel    string   `json:"channel,omitempty" yaml:"channel,omitempty"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Subject    string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	// Template names a collaborator-side template; Body is a literal message
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Body     string `json:"body,omitempty" yaml:"body,omitempty"`
	// Vars resolve template placeholders; values are context paths
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

func (c *EmailConfig) Kind() NodeKind { return KindEmail }

func (c *EmailConfig) Validate() error {
	var errs []error
	if len(c.Recipients) == 0 {
		errs = append(errs, errors.New("email requires at least one recipient"))
	}
	if c.Template == "" && c.Body == "" {
		errs = append(errs, errors.New("email requires a template or a body"))
	}
	return errors.Join(errs...)
}

// DatabaseConfig configures a database node.
type DatabaseConfig struct {
	// Operation is "query" (rows back) or "exec" (affected count back)
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`
	Query     string `json:"query" yaml:"query"`
	// Args are bound to query placeholders; strings starting with "$ctx."
	// resolve from the context snapshot
	Args []any `json:"args,omitempty" yaml:"args,omitempty"`
}

func (c *DatabaseConfig) Kind() NodeKind { return KindDatabase }

func (c *DatabaseConfig) Validate() error {
	if c.Query == "" {
		return errors.New("database operation requires a query string")
	}
	switch c.Operation {
	case "", "query", "exec":
		return nil
	default:
		return fmt.Errorf("unknown database operation %q", c.Operation)
	}
}

// LoopConfig configures a loop node.
type LoopConfig struct {
	// ItemsFrom is a dotted context path to the iterable
	ItemsFrom string `json:"items_from" yaml:"items_from"`
	// MaxIterations bounds the loop; exceeding it is a hard failure
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Body names a registered pure function applied per item; empty
	// passes items through unchanged
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
}

func (c *LoopConfig) Kind() NodeKind { return KindLoop }

func (c *LoopConfig) Validate() error {
	var errs []error
	if c.ItemsFrom == "" {
		errs = append(errs, errors.New("loop requires an iterable reference"))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, errors.New("loop requires max_iterations >= 1"))
	}
	return errors.Join(errs...)
}

// TransformConfig configures a data transform node.
type TransformConfig struct {
	// Expression computes the output from the context snapshot
	Expression string `json:"expression" yaml:"expression"`
	// OutputVar optionally also stores the result as a named variable
	OutputVar string `json:"output_var,omitempty" yaml:"output_var,omitempty"`
}

func (c *TransformConfig) Kind() NodeKind { return KindTransform }

func (c *TransformConfig) Validate() error {
	if c.Expression == "" {
		return errors.New("transform requires a transformation expression")
	}
	if _, err := expr.Parse(c.Expression); err != nil {
		return fmt.Errorf("invalid transform expression: %w", err)
	}
	return nil
}
