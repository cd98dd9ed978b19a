// Package labels maps classifier output indices to intent names and decodes
// logits into a single prediction.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnknownClass is returned when the arg-max index has no label.
var ErrUnknownClass = errors.New("unknown class")

// Map is an immutable class index to label table.
type Map struct {
	byIndex map[int]string
	indices []int
}

// New copies m into a Map.
func New(m map[int]string) (*Map, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("label map is empty")
	}
	byIndex := make(map[int]string, len(m))
	indices := make([]int, 0, len(m))
	for idx, label := range m {
		if idx < 0 {
			return nil, fmt.Errorf("negative class index %d", idx)
		}
		if strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("class %d has an empty label", idx)
		}
		byIndex[idx] = label
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return &Map{byIndex: byIndex, indices: indices}, nil
}

// Default returns the cockpit intent table the bundled model was trained on.
func Default() *Map {
	m, _ := New(map[int]string{
		0: "lower_window",
		1: "raise_window",
		2: "set_temperature",
		3: "mute_media",
		4: "unmute_media",
	})
	return m
}

// Label returns the label for idx.
func (m *Map) Label(idx int) (string, bool) {
	label, ok := m.byIndex[idx]
	return label, ok
}

// Len returns the number of labels.
func (m *Map) Len() int {
	return len(m.byIndex)
}

// Indices returns the class indices in ascending order.
func (m *Map) Indices() []int {
	out := make([]int, len(m.indices))
	copy(out, m.indices)
	return out
}

// file is the on-disk layout. Either key is accepted; id2label matches a
// HuggingFace config.json so the model's own config can be pointed at.
type file struct {
	Labels   map[string]string `json:"labels" yaml:"labels" toml:"labels"`
	ID2Label map[string]string `json:"id2label" yaml:"id2label" toml:"id2label"`
}

// Load reads a label table from a .json, .yaml/.yml or .toml file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels %s: %w", path, err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported label file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels %s: %w", path, err)
	}

	raw := f.Labels
	if len(raw) == 0 {
		raw = f.ID2Label
	}
	m := make(map[int]string, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("labels %s: bad class index %q", path, k)
		}
		m[idx] = v
	}

	lm, err := New(m)
	if err != nil {
		return nil, fmt.Errorf("labels %s: %w", path, err)
	}
	return lm, nil
}
