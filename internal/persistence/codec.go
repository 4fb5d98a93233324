package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/botflow/pkg/api"
)

// EncodeFlow serializes a graph in the editor's JSON shape.
func EncodeFlow(g api.FlowGraph) ([]byte, error) {
	if g.Nodes == nil {
		g.Nodes = []api.Node{}
	}
	if g.Edges == nil {
		g.Edges = []api.Edge{}
	}
	return json.Marshal(g)
}

// DecodeFlow parses a JSON graph. Unknown fields are ignored so exports from
// newer editors still load.
func DecodeFlow(data []byte) (api.FlowGraph, error) {
	var g api.FlowGraph
	if len(bytes.TrimSpace(data)) == 0 {
		return g, fmt.Errorf("decode flow: empty document")
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return api.FlowGraph{}, fmt.Errorf("decode flow: %w", err)
	}
	return g, nil
}

// DecodeFlowYAML parses a YAML graph using the same field names as JSON.
func DecodeFlowYAML(data []byte) (api.FlowGraph, error) {
	var g api.FlowGraph
	if len(bytes.TrimSpace(data)) == 0 {
		return g, fmt.Errorf("decode flow: empty document")
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return api.FlowGraph{}, fmt.Errorf("decode flow yaml: %w", err)
	}
	return g, nil
}

// EncodeFlowYAML serializes a graph as YAML.
func EncodeFlowYAML(g api.FlowGraph) ([]byte, error) {
	return yaml.Marshal(g)
}

// DecodeFlowFile picks the decoder from the file extension: .yaml and .yml
// are YAML, everything else is JSON.
func DecodeFlowFile(name string, data []byte) (api.FlowGraph, error) {
	if isYAML(name) {
		return DecodeFlowYAML(data)
	}
	return DecodeFlow(data)
}

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
