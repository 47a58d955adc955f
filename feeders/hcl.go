package feeders

import (
	"os"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/GoCodeAlone/modgraph/config"
)

// HCLFeeder reads HCL native syntax files. Constant attributes become
// scalar, array and object nodes; attributes that reference variables or
// call functions become expression nodes evaluated later by a script
// converter. A block is named by its last label, or by its type when it has
// no labels.
type HCLFeeder struct {
	Path string
}

func NewHCLFeeder(filePath string) HCLFeeder {
	return HCLFeeder{Path: filePath}
}

func (h HCLFeeder) Feed() (*config.Node, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, wrapReadError(h.Path, err)
	}
	n, err := ParseHCL(data, h.Path)
	if err != nil {
		return nil, wrapParseError("HCL", h.Path, err)
	}
	return n, nil
}

// ParseHCL converts an HCL document into a configuration tree. filename is
// used in diagnostics only.
func ParseHCL(data []byte, filename string) (*config.Node, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	return fromHCLBody("", body, data)
}

type positioned struct {
	offset int
	node   *config.Node
}

func fromHCLBody(name string, body *hclsyntax.Body, src []byte) (*config.Node, error) {
	var items []positioned
	for attrName, attr := range body.Attributes {
		items = append(items, positioned{
			offset: attr.SrcRange.Start.Byte,
			node:   fromHCLExpr(attrName, attr.Expr, src),
		})
	}
	for _, block := range body.Blocks {
		blockName := block.Type
		if n := len(block.Labels); n > 0 {
			blockName = block.Labels[n-1]
		}
		child, err := fromHCLBody(blockName, block.Body, src)
		if err != nil {
			return nil, err
		}
		items = append(items, positioned{offset: block.TypeRange.Start.Byte, node: child})
	}
	slices.SortFunc(items, func(a, b positioned) int { return a.offset - b.offset })

	obj := config.NewObject(name)
	for _, it := range items {
		obj.Children = append(obj.Children, it.node)
	}
	return obj, nil
}

func fromHCLExpr(name string, expr hclsyntax.Expression, src []byte) *config.Node {
	val, diags := expr.Value(nil)
	if diags.HasErrors() || !val.IsWhollyKnown() {
		return config.NewExpression(name, string(expr.Range().SliceBytes(src)))
	}
	return fromCty(name, val)
}

func fromCty(name string, val cty.Value) *config.Node {
	if val.IsNull() {
		return config.NewScalar(name, config.None)
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return config.NewScalar(name, val.AsString())
	case ty == cty.Number:
		return config.NewScalar(name, val.AsBigFloat().Text('f', -1))
	case ty == cty.Bool:
		if val.True() {
			return config.NewScalar(name, "true")
		}
		return config.NewScalar(name, "false")
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		arr := config.NewArray(name)
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			arr.Children = append(arr.Children, fromCty("", v))
		}
		return arr
	case ty.IsMapType() || ty.IsObjectType():
		obj := config.NewObject(name)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			obj.Children = append(obj.Children, fromCty(k.AsString(), v))
		}
		return obj
	default:
		return config.NewScalar(name, val.GoString())
	}
}
