// Package feeders turns configuration documents into config.Node trees.
// Each feeder reads one file format; Load picks the feeder by file extension.
package feeders

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/modgraph/config"
)

// Feeder produces a configuration tree.
type Feeder interface {
	Feed() (*config.Node, error)
}

// ForFile returns the feeder matching path's extension.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	case ".hcl":
		return NewHCLFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*config.Node, error) {
	f, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	return f.Feed()
}

// scalarNode converts a decoded string, turning "${...}" templates into
// expression nodes holding equivalent quoted HCL source.
func scalarNode(name, value string) *config.Node {
	if strings.Contains(value, "${") {
		return config.NewExpression(name, quoteTemplate(value))
	}
	return config.NewScalar(name, value)
}

// quoteTemplate wraps s in HCL template quotes. Literal text is escaped;
// interpolation sequences are copied verbatim so nested strings survive.
func quoteTemplate(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if depth > 0 {
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case strings.HasPrefix(s[i:], "$${"):
			b.WriteString("$${")
			i += 2
		case strings.HasPrefix(s[i:], "${"):
			b.WriteString("${")
			i++
			depth = 1
		case strings.HasPrefix(s[i:], "%{"):
			b.WriteString("%%{")
			i++
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// fromValue converts generically decoded data (JSON, TOML) into a node.
// Object keys are sorted since the decoders do not keep document order.
func fromValue(name, path string, v any) (*config.Node, error) {
	switch val := v.(type) {
	case nil:
		return config.NewScalar(name, config.None), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		obj := config.NewObject(name)
		for _, k := range keys {
			child, err := fromValue(k, join(path, k), val[k])
			if err != nil {
				return nil, err
			}
			obj.Children = append(obj.Children, child)
		}
		return obj, nil
	case []map[string]any:
		arr := config.NewArray(name)
		for i, item := range val {
			child, err := fromValue("", index(path, i), item)
			if err != nil {
				return nil, err
			}
			arr.Children = append(arr.Children, child)
		}
		return arr, nil
	case []any:
		arr := config.NewArray(name)
		for i, item := range val {
			child, err := fromValue("", index(path, i), item)
			if err != nil {
				return nil, err
			}
			arr.Children = append(arr.Children, child)
		}
		return arr, nil
	case string:
		return scalarNode(name, val), nil
	case bool:
		return config.NewScalar(name, strconv.FormatBool(val)), nil
	case int64:
		return config.NewScalar(name, strconv.FormatInt(val, 10)), nil
	case float64:
		return config.NewScalar(name, strconv.FormatFloat(val, 'f', -1, 64)), nil
	case time.Time:
		return config.NewScalar(name, val.Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		return config.NewScalar(name, val.String()), nil
	default:
		return nil, wrapValueError(path, v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}
