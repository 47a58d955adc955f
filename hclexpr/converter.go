// Package hclexpr evaluates expression-valued configuration nodes with the
// HCL expression language.
//
// Expression nodes hold HCL expression source, for example `max(2, 4)` or
// `"http://${host}:${port}"`. Variables are defined on the Converter; a set
// of go-cty standard library functions plus env() is always available.
package hclexpr

import (
	"errors"
	"fmt"
	"maps"
	"math/big"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/GoCodeAlone/modgraph/config"
)

var (
	ErrNotExpression = errors.New("node is not an expression")
	ErrEvaluation    = errors.New("expression evaluation failed")
	ErrConversion    = errors.New("expression result does not fit target type")
)

var durationType = reflect.TypeFor[time.Duration]()

// EnvFunc returns the value of an environment variable, or "" when unset.
var EnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "name", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// Converter is a linker.ScriptConverter backed by HCL.
type Converter struct {
	mu        sync.RWMutex
	variables map[string]cty.Value
	functions map[string]function.Function
}

// New creates a converter with the default function set.
func New() *Converter {
	return &Converter{
		variables: make(map[string]cty.Value),
		functions: map[string]function.Function{
			"abs":       stdlib.AbsoluteFunc,
			"ceil":      stdlib.CeilFunc,
			"coalesce":  stdlib.CoalesceFunc,
			"concat":    stdlib.ConcatFunc,
			"contains":  stdlib.ContainsFunc,
			"env":       EnvFunc,
			"floor":     stdlib.FloorFunc,
			"format":    stdlib.FormatFunc,
			"join":      stdlib.JoinFunc,
			"keys":      stdlib.KeysFunc,
			"length":    stdlib.LengthFunc,
			"lower":     stdlib.LowerFunc,
			"max":       stdlib.MaxFunc,
			"merge":     stdlib.MergeFunc,
			"min":       stdlib.MinFunc,
			"replace":   stdlib.ReplaceFunc,
			"split":     stdlib.SplitFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"upper":     stdlib.UpperFunc,
			"values":    stdlib.ValuesFunc,
		},
	}
}

// Define makes value available to expressions as a variable called name.
func (c *Converter) Define(name string, value any) error {
	ty, err := gocty.ImpliedType(value)
	if err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	v, err := gocty.ToCtyValue(value, ty)
	if err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[name] = v
	return nil
}

// DefineFunc adds or replaces a function.
func (c *Converter) DefineFunc(name string, fn function.Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[name] = fn
}

func (c *Converter) IsExecutable(node *config.Node) bool {
	return node != nil && node.Kind == config.KindExpression
}

// Execute evaluates node and converts the result to target. A null result
// is reported as (nil, nil), the same as the literal "none".
func (c *Converter) Execute(node *config.Node, target reflect.Type) (any, error) {
	if !c.IsExecutable(node) {
		return nil, ErrNotExpression
	}
	val, err := c.Evaluate(node.Name, node.Value)
	if err != nil {
		return nil, err
	}
	return fromCty(val, target)
}

// Evaluate parses and evaluates src, returning the raw cty value.
func (c *Converter) Evaluate(name, src string) (cty.Value, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), name, hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %s", ErrEvaluation, diags.Error())
	}
	val, diags := expr.Value(c.evalContext())
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %s", ErrEvaluation, diags.Error())
	}
	return val, nil
}

func (c *Converter) evalContext() *hcl.EvalContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &hcl.EvalContext{
		Variables: maps.Clone(c.variables),
		Functions: maps.Clone(c.functions),
	}
}

func fromCty(val cty.Value, target reflect.Type) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("%w: result is not known", ErrEvaluation)
	}
	if target.Kind() == reflect.Interface && target.NumMethod() == 0 {
		return natural(val), nil
	}
	if target == durationType && val.Type() == cty.String {
		d, err := time.ParseDuration(val.AsString())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		return d, nil
	}

	want, err := gocty.ImpliedType(reflect.Zero(target).Interface())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversion, target, err)
	}
	converted, err := convert.Convert(val, want)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversion, target, err)
	}
	out := reflect.New(target)
	if err := gocty.FromCtyValue(converted, out.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversion, target, err)
	}
	return out.Elem().Interface(), nil
}

// natural maps a cty value onto string, int64, float64, bool, []any and
// map[string]any.
func natural(val cty.Value) any {
	if val.IsNull() {
		return nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString()
	case ty == cty.Bool:
		return val.True()
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i
			}
		}
		f, _ := bf.Float64()
		return f
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		items := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			items = append(items, natural(v))
		}
		return items
	case ty.IsMapType() || ty.IsObjectType():
		m := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			m[k.AsString()] = natural(v)
		}
		return m
	default:
		return val.GoString()
	}
}
