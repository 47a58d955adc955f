package feeders

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/GoCodeAlone/modgraph/config"
)

// TomlFeeder reads TOML files.
type TomlFeeder struct {
	Path string
}

func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

func (t TomlFeeder) Feed() (*config.Node, error) {
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return nil, wrapReadError(t.Path, err)
	}
	n, err := ParseTOML(data)
	if err != nil {
		return nil, wrapParseError("TOML", t.Path, err)
	}
	return n, nil
}

// ParseTOML converts a TOML document into a configuration tree.
func ParseTOML(data []byte) (*config.Node, error) {
	var allData map[string]any
	if _, err := toml.Decode(string(data), &allData); err != nil {
		return nil, err
	}
	if allData == nil {
		return config.NewObject(""), nil
	}
	return fromValue("", "", allData)
}
