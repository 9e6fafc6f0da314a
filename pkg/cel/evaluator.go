package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// RecordVariable is the single variable visible to rules: a map of the record's fields.
const RecordVariable = "record"

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(RecordVariable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateFilterExpression checks that expression compiles and yields a bool.
func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileFilter(expression)
	return err
}

func (e *Evaluator) compileFilter(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

// Filter is a compiled boolean expression over the record variable.
type Filter struct {
	Expression string
	program    cel.Program
}

// CompileFilters compiles every expression up front so a bad rule fails at start-up.
func (e *Evaluator) CompileFilters(expressions []string) ([]Filter, error) {
	filters := make([]Filter, 0, len(expressions))
	for i, expr := range expressions {
		ast, err := e.compileFilter(expr)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
		if err != nil {
			return nil, fmt.Errorf("rule %d: failed to create CEL program: %w", i, err)
		}
		filters = append(filters, Filter{Expression: expr, program: program})
	}
	return filters, nil
}

// Matches evaluates the filter against record.
func (f Filter) Matches(ctx context.Context, record map[string]interface{}) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, map[string]interface{}{
		RecordVariable: record,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
