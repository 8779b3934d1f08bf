package form

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"google.golang.org/protobuf/types/known/structpb"
)

// celCompileCache compiles each distinct expression once. Form
// expressions are re-evaluated constantly (every cascade can touch
// several DERIVED fields), so compilation must not repeat per evaluation.
type celCompileCache struct {
	mu      sync.Mutex
	env     *cel.Env
	program map[string]cel.Program
}

var defaultCELCache = newCELCache()

func newCELCache() *celCompileCache {
	env, err := cel.NewEnv(
		cel.Variable("values", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		// cel.NewEnv only fails on malformed builtin declarations; the
		// declaration above is fixed and known-good.
		panic(fmt.Sprintf("form: cel env: %v", err))
	}
	return &celCompileCache{env: env, program: make(map[string]cel.Program)}
}

func (c *celCompileCache) compile(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.program[expr]; ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("form: compile CEL expression %q: %w", expr, issues.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("form: build CEL program %q: %w", expr, err)
	}
	c.program[expr] = prg
	return prg, nil
}

// EvaluateCEL compiles (with caching) and evaluates expr against values,
// exposed for callers outside this package that need the same
// compile-and-cache expression evaluation DERIVED fields and populators
// use — e.g. a node kind that evaluates a CEL condition over its input
// envelope rather than over a form snapshot.
func EvaluateCEL(expr string, values map[string]any) (any, error) {
	return evalCEL(expr, values)
}

// evalCEL evaluates expr against the given form-value snapshot. The
// result is normalized through structpb into JSON-native Go values
// ([]any, map[string]any, string, float64, bool, nil) so callers can
// range over lists and store results in envelopes without caring about
// the evaluator's internal value types.
func evalCEL(expr string, values map[string]any) (any, error) {
	prg, err := defaultCELCache.compile(expr)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(map[string]any{"values": values})
	if err != nil {
		return nil, fmt.Errorf("form: evaluate CEL expression %q: %w", expr, err)
	}
	native, err := out.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return nil, fmt.Errorf("form: convert CEL result of %q: %w", expr, err)
	}
	return native.(*structpb.Value).AsInterface(), nil
}

// NewCELPopulator compiles a CEL expression once and returns a Populator
// that evaluates it against the current form snapshot to build a field's
// option list. The expression must evaluate to a list of strings (each
// becomes an Option with Value == Text) or a list of {value, text} maps.
func NewCELPopulator(expr string) (Populator, error) {
	if _, err := defaultCELCache.compile(expr); err != nil {
		return nil, err
	}
	return func(values map[string]any) ([]Option, error) {
		result, err := evalCEL(expr, values)
		if err != nil {
			return nil, err
		}
		return toOptions(result)
	}, nil
}

func toOptions(result any) ([]Option, error) {
	list, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("form: CEL populator must return a list, got %T", result)
	}
	out := make([]Option, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, Option{Value: v, Text: v})
		case map[string]any:
			value := fmt.Sprintf("%v", v["value"])
			text := fmt.Sprintf("%v", v["text"])
			out = append(out, Option{Value: value, Text: text})
		default:
			return nil, fmt.Errorf("form: CEL populator option must be a string or {value,text} map, got %T", item)
		}
	}
	return out, nil
}

// evaluateDerived computes a DERIVED field's value from its CEL
// expression against the given snapshot.
func evaluateDerived(expr string, snapshot map[string]any) (any, error) {
	return evalCEL(expr, snapshot)
}
