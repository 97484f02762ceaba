// Package eligibility compiles processor requirements written in CEL into
// invocation predicates.
//
// An expression sees three variables:
//
//	attrs      map(string, dyn)  processor attributes
//	processor  string            processor id
//	now_ms     int               evaluation time in unix milliseconds
//
// e.g. `has(attrs.gpu) && attrs.gpu && processor.startsWith("farm-")`.
// An empty expression accepts every processor. Evaluation errors reject.
package eligibility

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

// ProcessorIDAttr is the attribute key the scheduler stores the processor
// id under; it is exposed to expressions as the `processor` variable.
const ProcessorIDAttr = "processor.id"

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func sharedEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("processor", cel.StringType),
			cel.Variable("now_ms", cel.IntType),
			// JSON attributes arrive as doubles; let attrs.cores >= 4 work.
			cel.CrossTypeNumericComparisons(true),
		)
	})
	return env, envErr
}

// Expr is a compiled requirement. The zero value accepts everything.
type Expr struct {
	src  string
	prog cel.Program
}

var _ invocation.Predicate = (*Expr)(nil)

// Compile parses and type-checks expr. The result must be boolean.
func Compile(expr string) (*Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Expr{}, nil
	}
	e, err := sharedEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := e.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", invocation.ErrInvalidArgument, iss.Err())
	}
	checked, iss2 := e.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, fmt.Errorf("%w: %v", invocation.ErrInvalidArgument, iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: requirement must be boolean, got %s", invocation.ErrInvalidArgument, checked.OutputType())
	}
	prog, err := e.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Expr{src: expr, prog: prog}, nil
}

// String returns the source expression.
func (x *Expr) String() string {
	if x == nil {
		return ""
	}
	return x.src
}

// Evaluate runs the expression against a processor's attributes.
func (x *Expr) Evaluate(attrs invocation.Attributes) bool {
	if x == nil || x.prog == nil {
		return true
	}
	processor, _ := attrs[ProcessorIDAttr].(string)
	vars := make(map[string]any, len(attrs))
	for k, v := range attrs {
		vars[k] = v
	}
	out, _, err := x.prog.Eval(map[string]any{
		"attrs":     vars,
		"processor": processor,
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
