package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/modgraph/config"
)

// YamlFeeder reads YAML files, keeping mapping order.
type YamlFeeder struct {
	Path string
}

func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

func (y YamlFeeder) Feed() (*config.Node, error) {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, wrapReadError(y.Path, err)
	}
	n, err := ParseYAML(data)
	if err != nil {
		return nil, wrapParseError("YAML", y.Path, err)
	}
	return n, nil
}

// ParseYAML converts a YAML document into a configuration tree.
func ParseYAML(data []byte) (*config.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return config.NewObject(""), nil
	}
	root, err := fromYAML("", "", doc.Content[0])
	if err != nil {
		return nil, err
	}
	if root.Kind != config.KindObject {
		return nil, ErrRootNotObject
	}
	return root, nil
}

func fromYAML(name, path string, n *yaml.Node) (*config.Node, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromYAML(name, path, n.Alias)
	case yaml.MappingNode:
		obj := config.NewObject(name)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Value == "<<" {
				merged, err := fromYAML(name, path, value)
				if err != nil {
					return nil, err
				}
				obj.Children = append(obj.Children, merged.Children...)
				continue
			}
			child, err := fromYAML(key.Value, join(path, key.Value), value)
			if err != nil {
				return nil, err
			}
			obj.Children = append(obj.Children, child)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := config.NewArray(name)
		for i, item := range n.Content {
			child, err := fromYAML("", index(path, i), item)
			if err != nil {
				return nil, err
			}
			arr.Children = append(arr.Children, child)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return config.NewScalar(name, config.None), nil
		case "!!str":
			return scalarNode(name, n.Value), nil
		default:
			return config.NewScalar(name, n.Value), nil
		}
	default:
		return nil, fmt.Errorf("%w at %s: yaml kind %d", ErrUnsupportedValue, path, n.Kind)
	}
}
