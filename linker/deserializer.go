package linker

import (
	"fmt"
	"reflect"
	"time"

	"github.com/golobby/cast"

	"github.com/GoCodeAlone/modgraph/config"
)

var (
	nodeType     = reflect.TypeFor[*config.Node]()
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// StandardDeserializer decodes scalars, slices, maps, pointers, durations and
// timestamps. Fields typed *config.Node receive the raw node. Expression
// nodes are handed to the script converter. Nested structs are bound with
// Section rather than decoded here.
type StandardDeserializer struct{}

func (d *StandardDeserializer) Deserialize(node *config.Node, target reflect.Type, conv ScriptConverter) (any, error) {
	if node.IsNone() {
		return nil, nil
	}
	v, err := d.decode(node, target, conv)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (d *StandardDeserializer) decode(node *config.Node, target reflect.Type, conv ScriptConverter) (reflect.Value, error) {
	if node.IsNone() {
		return reflect.Zero(target), nil
	}
	if target == nodeType {
		return reflect.ValueOf(node), nil
	}
	if node.Kind == config.KindExpression {
		return d.execute(node, target, conv)
	}

	switch {
	case target == durationType:
		if err := expectScalar(node, target); err != nil {
			return reflect.Value{}, err
		}
		dur, err := time.ParseDuration(node.Value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return reflect.ValueOf(dur), nil
	case target == timeType:
		if err := expectScalar(node, target); err != nil {
			return reflect.Value{}, err
		}
		ts, err := time.Parse(time.RFC3339Nano, node.Value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return reflect.ValueOf(ts), nil
	}

	switch target.Kind() {
	case reflect.Pointer:
		elem, err := d.decode(node, target.Elem(), conv)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case reflect.Slice:
		if node.Kind != config.KindArray {
			return reflect.Value{}, fmt.Errorf("%w: want array for %s, got %s", ErrTypeMismatch, target, node.Kind)
		}
		out := reflect.MakeSlice(target, 0, len(node.Children))
		for i, item := range node.Children {
			v, err := d.decode(item, target.Elem(), conv)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	case reflect.Map:
		if target.Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("%w: map key %s", ErrUnsupportedType, target.Key())
		}
		if node.Kind != config.KindObject {
			return reflect.Value{}, fmt.Errorf("%w: want object for %s, got %s", ErrTypeMismatch, target, node.Kind)
		}
		out := reflect.MakeMapWithSize(target, len(node.Children))
		for _, child := range node.Children {
			v, err := d.decode(child, target.Elem(), conv)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %w", child.Name, err)
			}
			out.SetMapIndex(reflect.ValueOf(child.Name).Convert(target.Key()), v)
		}
		return out, nil
	case reflect.Interface:
		if target.NumMethod() != 0 {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, target)
		}
		v := reflect.New(target).Elem()
		v.Set(reflect.ValueOf(plain(node)))
		return v, nil
	case reflect.Struct, reflect.Array, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, target)
	}

	if err := expectScalar(node, target); err != nil {
		return reflect.Value{}, err
	}
	converted, err := cast.FromType(node.Value, target)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: cannot convert %q to %s: %v", ErrTypeMismatch, node.Value, target, err)
	}
	return convertTo(reflect.ValueOf(converted), target)
}

func (d *StandardDeserializer) execute(node *config.Node, target reflect.Type, conv ScriptConverter) (reflect.Value, error) {
	if conv == nil || !conv.IsExecutable(node) {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNoConverter, node.Value)
	}
	out, err := conv.Execute(node, target)
	if err != nil {
		return reflect.Value{}, err
	}
	if out == nil {
		return reflect.Zero(target), nil
	}
	return convertTo(reflect.ValueOf(out), target)
}

func convertTo(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	switch {
	case v.Type() == target:
		return v, nil
	case v.Type().AssignableTo(target):
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	case v.Kind() == target.Kind() && v.Type().ConvertibleTo(target):
		return v.Convert(target), nil
	case numeric(v.Kind()) && numeric(target.Kind()):
		return v.Convert(target), nil
	default:
		return reflect.Value{}, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, v.Type(), target)
	}
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func expectScalar(node *config.Node, target reflect.Type) error {
	if node.Kind != config.KindScalar {
		return fmt.Errorf("%w: want scalar for %s, got %s", ErrTypeMismatch, target, node.Kind)
	}
	return nil
}

// plain converts a node into map[string]any, []any or string values.
func plain(node *config.Node) any {
	switch node.Kind {
	case config.KindObject:
		m := make(map[string]any, len(node.Children))
		for _, c := range node.Children {
			m[c.Name] = plain(c)
		}
		return m
	case config.KindArray:
		items := make([]any, 0, len(node.Children))
		for _, c := range node.Children {
			items = append(items, plain(c))
		}
		return items
	default:
		return node.Value
	}
}
