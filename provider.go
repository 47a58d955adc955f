package modgraph

import (
	"reflect"
)

// moduleIndex maps node paths to instances and back. Build fills a private
// index and publishes it only when the whole tree is bound and configured.
type moduleIndex struct {
	byPath     map[string]*Node
	byInstance map[any]*Node
}

func newModuleIndex(roots []*Node) *moduleIndex {
	idx := &moduleIndex{
		byPath:     make(map[string]*Node),
		byInstance: make(map[any]*Node),
	}
	for _, r := range roots {
		_ = r.walk(func(n *Node) error {
			idx.byPath[n.path] = n
			if _, stateless := n.instance.(*Stateless); !stateless {
				idx.byInstance[n.instance] = n
			}
			return nil
		})
	}
	return idx
}

func (idx *moduleIndex) ProvideModule(name string, t reflect.Type) (any, bool) {
	if idx == nil {
		return nil, false
	}
	n, ok := idx.byPath[name]
	if !ok || !reflect.TypeOf(n.instance).AssignableTo(t) {
		return nil, false
	}
	return n.instance, true
}

func (idx *moduleIndex) ModuleName(instance any) (string, bool) {
	if idx == nil || instance == nil {
		return "", false
	}
	n, ok := idx.byInstance[instance]
	if !ok {
		return "", false
	}
	return n.path, true
}
