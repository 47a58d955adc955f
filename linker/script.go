package linker

import (
	"reflect"

	"github.com/GoCodeAlone/modgraph/config"
)

// ScriptConverter evaluates expression-valued configuration nodes on behalf
// of deserializers.
type ScriptConverter interface {
	// IsExecutable reports whether the converter can evaluate node.
	IsExecutable(node *config.Node) bool
	// Execute evaluates node and converts the result to target.
	Execute(node *config.Node, target reflect.Type) (any, error)
}

// ElementDeserializer turns a configuration node into a value of the target
// type. It returns (nil, nil) for the literal "none".
type ElementDeserializer interface {
	Deserialize(node *config.Node, target reflect.Type, conv ScriptConverter) (any, error)
}

// ModuleProvider resolves module names to live module instances and back.
type ModuleProvider interface {
	ProvideModule(name string, t reflect.Type) (any, bool)
	ModuleName(instance any) (string, bool)
}

var (
	deserializerType = reflect.TypeFor[ElementDeserializer]()
	converterType    = reflect.TypeFor[ScriptConverter]()
)
