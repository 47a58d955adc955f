package feeders

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/GoCodeAlone/modgraph/config"
)

// JSONFeeder reads JSON files.
type JSONFeeder struct {
	Path string
}

func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) Feed() (*config.Node, error) {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, wrapReadError(j.Path, err)
	}
	n, err := ParseJSON(data)
	if err != nil {
		return nil, wrapParseError("JSON", j.Path, err)
	}
	return n, nil
}

// ParseJSON converts a JSON document into a configuration tree. Numbers keep
// their literal text.
func ParseJSON(data []byte) (*config.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return config.NewObject(""), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var allData any
	if err := dec.Decode(&allData); err != nil {
		return nil, err
	}
	if _, ok := allData.(map[string]any); !ok {
		return nil, ErrRootNotObject
	}
	return fromValue("", "", allData)
}
