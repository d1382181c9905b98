package network

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Instances   []yamlInstance   `yaml:"instances"`
	Connections []yamlConnection `yaml:"connections"`
}

type yamlInstance struct {
	Name     string `yaml:"name"`
	Function string `yaml:"function"`
}

type yamlConnection struct {
	From  string     `yaml:"from,omitempty"`
	To    string     `yaml:"to"`
	Value *yaml.Node `yaml:"value,omitempty"`
}

// ParseYAML parses a YAML definition:
//
//	instances:
//	  - name: half
//	    function: math::pow
//	connections:
//	  - from: pi:out.c
//	    to: half:in.a
//	  - value: 0.5
//	    to: half:in.b
//
// Unknown fields are rejected.
func ParseYAML(data []byte) (*Definition, error) {
	var f yamlFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	d := &Definition{}
	for i, inst := range f.Instances {
		d.Instances = append(d.Instances, InstanceDef{
			Name:     inst.Name,
			Function: inst.Function,
			Where:    fmt.Sprintf("instances[%d]", i),
		})
	}
	for i, c := range f.Connections {
		where := fmt.Sprintf("connections[%d]", i)
		cd := ConnectionDef{Src: c.From, Dst: c.To, Where: where}
		if c.Value != nil {
			if c.Value.Kind != yaml.ScalarNode {
				return nil, &DefinitionError{Where: where, Message: fmt.Sprintf("line %d: value must be a scalar", c.Value.Line)}
			}
			lit := c.Value.Value
			cd.Value = &lit
		}
		d.Connections = append(d.Connections, cd)
	}
	return d, nil
}
