package operations

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const defaultCondition = "count > 0"

// Condition passes its files on when the expression holds and drops them otherwise.
// The expression sees files (list of paths) and count.
type Condition struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewCondition() *Condition {
	return &Condition{cache: make(map[string]*vm.Program)}
}

func (*Condition) Type() string { return "logic_condition" }

func (c *Condition) Execute(_ context.Context, input Input) (map[string]any, error) {
	expression := strings.TrimSpace(input.Text("expression"))
	if expression == "" {
		expression = defaultCondition
	}

	files := input.Files
	if files == nil {
		files = []string{}
	}

	prg, err := c.compile(expression)
	if err != nil {
		return nil, err
	}

	result, err := expr.Run(prg, conditionEnv(files))
	if err != nil {
		return nil, fmt.Errorf("condition %q failed: %w", expression, err)
	}

	passed, _ := result.(bool)

	out := filesOutput(files)
	if !passed {
		out = filesOutput(nil)
	}

	out["result"] = passed

	return out, nil
}

func conditionEnv(files []string) map[string]any {
	return map[string]any{"files": files, "count": len(files)}
}

func (c *Condition) compile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	if prg, ok := c.cache[expression]; ok {
		c.mu.RUnlock()

		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(conditionEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", expression, err)
	}

	c.cache[expression] = prg

	return prg, nil
}

// Delay waits for the configured number of seconds before passing files on.
type Delay struct{}

func NewDelay() *Delay {
	return &Delay{}
}

func (*Delay) Type() string { return "logic_delay" }

func (*Delay) Execute(ctx context.Context, input Input) (map[string]any, error) {
	seconds := input.Number("seconds")
	if seconds > 0 {
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return filesOutput(input.Files), nil
}
