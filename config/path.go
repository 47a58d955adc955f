package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidPath  = errors.New("invalid key path")
	ErrPathMismatch = errors.New("key path does not match node kind")
)

// Lookup resolves a key path relative to n. Paths are dot-separated object
// keys with optional bracketed array indices, for example "server.tls[0].cert".
// A path that simply does not exist yields (nil, nil).
func (n *Node) Lookup(path string) (*Node, error) {
	segments, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	cur := n
	for _, seg := range segments {
		if cur == nil {
			return nil, nil
		}
		if seg.key != "" {
			if cur.Kind != KindObject {
				return nil, fmt.Errorf("%w: %q is %s, want object", ErrPathMismatch, seg.key, cur.Kind)
			}
			cur = cur.Child(seg.key)
			continue
		}
		if cur.Kind != KindArray {
			return nil, fmt.Errorf("%w: index [%d] on %s", ErrPathMismatch, seg.index, cur.Kind)
		}
		cur = cur.Index(seg.index)
	}
	return cur, nil
}

type segment struct {
	key   string
	index int
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var segments []segment
	for part := range strings.SplitSeq(path, ".") {
		key, rest, _ := strings.Cut(part, "[")
		if key == "" && !strings.HasPrefix(part, "[") {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if key != "" {
			segments = append(segments, segment{key: key})
		}
		if rest == "" && !strings.Contains(part, "[") {
			continue
		}
		rest = "[" + rest
		for rest != "" {
			if !strings.HasPrefix(rest, "[") {
				return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidPath, rest, path)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed index in %q", ErrInvalidPath, path)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, rest[1:end], path)
			}
			segments = append(segments, segment{index: idx})
			rest = rest[end+1:]
		}
	}
	return segments, nil
}
