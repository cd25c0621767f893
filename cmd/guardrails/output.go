package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch outputFormat(s) {
	case formatJSON, formatYAML:
		return outputFormat(s), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: json, yaml)", s)
	}
}

// render writes v to w. YAML output keeps the JSON field names and order.
func render(w io.Writer, format outputFormat, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if format != formatYAML {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	blockStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// blockStyle drops the flow and quoting styles the JSON input carries so
// the encoder picks plain block YAML.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}
