package network

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

type hclFile struct {
	Instances   []*hclInstance   `hcl:"instance,block"`
	Connections []*hclConnection `hcl:"connect,block"`
}

type hclInstance struct {
	Name     string `hcl:"name,label"`
	Function string `hcl:"function"`
}

type hclConnection struct {
	To    string         `hcl:"to,label"`
	From  *string        `hcl:"from,optional"`
	Value hcl.Expression `hcl:"value,optional"`
}

// ParseHCL parses an HCL definition:
//
//	instance "half" {
//	  function = "math::pow"
//	}
//	connect "half:in.a" {
//	  from = "pi:out.c"
//	}
//	connect "half:in.b" {
//	  value = 0.5
//	}
//
// Values must be constant strings, numbers or bools.
func ParseHCL(filename string, data []byte) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var f hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	d := &Definition{}
	for _, inst := range f.Instances {
		d.Instances = append(d.Instances, InstanceDef{
			Name:     inst.Name,
			Function: inst.Function,
			Where:    fmt.Sprintf("%s: instance %q", filename, inst.Name),
		})
	}
	for _, c := range f.Connections {
		where := fmt.Sprintf("%s: connect %q", filename, c.To)
		cd := ConnectionDef{Dst: c.To, Where: where}
		if c.From != nil {
			cd.Src = *c.From
		}
		if c.Value != nil {
			v, diags := c.Value.Value(nil)
			if diags.HasErrors() {
				return nil, &DefinitionError{Where: where, Message: "value", Err: diags}
			}
			if !v.IsNull() {
				lit, err := ctyLiteral(v)
				if err != nil {
					return nil, &DefinitionError{Where: c.Value.Range().String(), Message: "value", Err: err}
				}
				cd.Value = &lit
			}
		}
		d.Connections = append(d.Connections, cd)
	}
	return d, nil
}

// ctyLiteral renders a constant in the literal syntax of the value model.
func ctyLiteral(v cty.Value) (string, error) {
	if !v.IsKnown() {
		return "", fmt.Errorf("value is not known")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		return v.AsBigFloat().Text('g', -1), nil
	case cty.Bool:
		return strconv.FormatBool(v.True()), nil
	}
	return "", fmt.Errorf("unsupported value type %s, expected string, number or bool", v.Type().FriendlyName())
}
