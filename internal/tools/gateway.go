package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/troupelabs/troupe/pkg/models"
)

// ErrToolTimeout indicates a tool ran past the gateway's deadline. The
// worker is abandoned and its eventual result discarded.
var ErrToolTimeout = errors.New("tool execution timed out")

// ErrBatchTooLarge indicates a batch exceeded the per-turn call limit and
// was rejected whole.
var ErrBatchTooLarge = errors.New("tool batch too large")

const (
	// DefaultTimeout bounds a single tool execution.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxConcurrent caps simultaneous executions process-wide.
	DefaultMaxConcurrent = 3
	// DefaultBatchLimit caps calls accepted in one batch.
	DefaultBatchLimit = 10
	// DefaultAuditSize is the audit ring capacity.
	DefaultAuditSize = 1000

	// maxOutputChars truncates oversized tool output before it reaches the
	// model context.
	maxOutputChars = 30000
)

// GatewayConfig configures a Gateway. Zero values fall back to defaults.
type GatewayConfig struct {
	// Registry supplies the callable tools.
	Registry *Registry
	// Policy decides per-agent access. A nil policy denies everything.
	Policy *Policy
	// MaxConcurrent caps simultaneous executions.
	MaxConcurrent int
	// Timeout bounds each execution.
	Timeout time.Duration
	// BatchLimit caps calls per batch.
	BatchLimit int
	// AuditSize is the audit ring capacity.
	AuditSize int
}

// Gateway executes tool calls under policy, concurrency, and time bounds,
// recording every attempt in the audit ring. All execution paths return a
// structured result; the gateway never panics on a misbehaving tool.
type Gateway struct {
	registry   *Registry
	policy     *Policy
	limiter    *Limiter
	audit      *Audit
	timeout    time.Duration
	batchLimit int
	debugLog   func(format string, args ...interface{})
}

// NewGateway creates a gateway from the config, applying defaults for zero
// values.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Policy == nil {
		cfg.Policy = NewPolicy(nil)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.AuditSize <= 0 {
		cfg.AuditSize = DefaultAuditSize
	}
	return &Gateway{
		registry:   cfg.Registry,
		policy:     cfg.Policy,
		limiter:    NewLimiter(cfg.MaxConcurrent),
		audit:      NewAudit(cfg.AuditSize),
		timeout:    cfg.Timeout,
		batchLimit: cfg.BatchLimit,
	}
}

// SetDebugLog sets a logging function for execution tracing.
func (g *Gateway) SetDebugLog(fn func(format string, args ...interface{})) {
	g.debugLog = fn
}

func (g *Gateway) logf(format string, args ...interface{}) {
	if g.debugLog != nil {
		g.debugLog(format, args...)
	}
}

// Registry returns the gateway's tool registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Audit returns the gateway's audit ring.
func (g *Gateway) Audit() *Audit {
	return g.audit
}

// Limiter returns the gateway's concurrency limiter.
func (g *Gateway) Limiter() *Limiter {
	return g.limiter
}

// ToolsFor returns the tools the agent may invoke under the current policy,
// sorted by name. Providers export these schemas to the model.
func (g *Gateway) ToolsFor(agent string) []Tool {
	names := g.policy.AllowedFor(agent, g.registry)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		if t, ok := g.registry.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs one tool call. Denials, limit rejections, timeouts, tool
// errors, and panics all come back as a failed result; only the happy path
// sets OK.
func (g *Gateway) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	started := time.Now()

	tool, ok := g.registry.Get(call.Tool)
	if !ok {
		return g.finish(call, started, "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Tool))
	}
	if err := g.policy.Check(call.Agent, call.Tool); err != nil {
		return g.finish(call, started, "", err)
	}
	if err := g.limiter.Acquire(); err != nil {
		return g.finish(call, started, "", err)
	}
	defer g.limiter.Release()

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("panic in tool %s: %v", call.Tool, rec)}
			}
		}()
		output, err := tool.Fn(tctx, call.Args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		return g.finish(call, started, o.output, o.err)
	case <-tctx.Done():
		err := tctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s after %s", ErrToolTimeout, call.Tool, g.timeout)
		}
		return g.finish(call, started, "", err)
	}
}

// ExecuteBatch runs up to the batch limit of calls concurrently, each still
// subject to the per-call checks, and returns one result per call in input
// order. An oversized batch is rejected whole with ErrBatchTooLarge.
func (g *Gateway) ExecuteBatch(ctx context.Context, calls []models.ToolCall) ([]models.ToolResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if len(calls) > g.batchLimit {
		return nil, fmt.Errorf("%w: %d calls exceeds limit of %d", ErrBatchTooLarge, len(calls), g.batchLimit)
	}

	results := make([]models.ToolResult, len(calls))
	eg := new(errgroup.Group)
	for i, call := range calls {
		eg.Go(func() error {
			// Failures land in the result record; workers never return an
			// error, so one bad call cannot cancel its siblings.
			results[i] = g.Execute(ctx, call)
			return nil
		})
	}
	_ = eg.Wait()
	return results, nil
}

// finish builds the result, records it in the audit ring, and logs it.
func (g *Gateway) finish(call models.ToolCall, started time.Time, output string, err error) models.ToolResult {
	res := models.ToolResult{
		CallID:   call.ID,
		Tool:     call.Tool,
		Duration: time.Since(started),
	}
	if err != nil {
		res.Error = err.Error()
		g.logf("tool %s failed for agent %s: %v", call.Tool, call.Agent, err)
	} else {
		res.OK = true
		res.Content = truncateOutput(output)
		g.logf("tool %s completed for agent %s in %s", call.Tool, call.Agent, res.Duration.Round(time.Millisecond))
	}

	g.audit.Append(Record{Time: time.Now(), Call: call, Result: res})
	return res
}

func truncateOutput(output string) string {
	if len(output) > maxOutputChars {
		return output[:maxOutputChars] + "\n... (output truncated)"
	}
	return output
}
