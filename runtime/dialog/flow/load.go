package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse builds a flow definition from YAML bytes.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	if err := d.normalize(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads and parses a flow definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", path, err)
	}
	return d, nil
}

// NewDefinition builds a flow definition from in-memory state configuration.
// Tests and embedded flows use it to avoid YAML round-trips.
func NewDefinition(name string, states map[string]*State) (*Definition, error) {
	d := &Definition{FlowName: name, StateConfigs: states}
	if err := d.normalize(); err != nil {
		return nil, err
	}
	return d, nil
}
