package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const separatorWidth = 60 // Width of separator lines in text output

// planJSON is the explain output of a plan.
type planJSON struct {
	Function  string        `json:"function"`
	Signature string        `json:"signature"`
	Requested Method        `json:"requested"`
	Method    Method        `json:"method"`
	Reason    string        `json:"reason"`
	Variants  []variantJSON `json:"variants"`
	Pruned    []variantJSON `json:"pruned,omitempty"`
	Baseline  baselineJSON  `json:"baseline"`
	Config    configJSON    `json:"config"`
}

type variantJSON struct {
	Name         string       `json:"name"`
	Target       string       `json:"target"`
	Specificity  int          `json:"specificity"`
	Priority     int          `json:"priority"`
	Satisfaction Satisfaction `json:"satisfaction"`
}

type baselineJSON struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
}

type configJSON struct {
	Arch                    string   `json:"arch,omitempty"`
	Level                   string   `json:"level,omitempty"`
	Enabled                 []string `json:"enabled,omitempty"`
	Disabled                []string `json:"disabled,omitempty"`
	Exhaustive              bool     `json:"exhaustive,omitempty"`
	BuildConstraint         string   `json:"build_constraint,omitempty"`
	IndirectBranchHardening bool     `json:"indirect_branch_hardening"`
}

// ToJSON outputs the plan as indented JSON.
func (p *Plan) ToJSON() ([]byte, error) {
	out := planJSON{
		Function:  p.Signature.Name,
		Signature: p.Signature.String(),
		Requested: p.Requested,
		Method:    p.Method,
		Reason:    p.Reason,
		Variants:  toVariantJSON(p.Variants),
		Pruned:    toVariantJSON(p.Pruned),
		Baseline: baselineJSON{
			Name:      p.Signature.Name,
			Reachable: p.BaselineReachable(),
		},
		Config: configJSON{
			Level:                   p.Config.Level,
			Enabled:                 p.Config.Enabled,
			Disabled:                p.Config.Disabled,
			Exhaustive:              p.Config.Exhaustive,
			BuildConstraint:         p.Config.BuildConstraint(),
			IndirectBranchHardening: p.Config.IndirectBranchHardening,
		},
	}
	if p.Config.Arch.IsValid() {
		out.Config.Arch = p.Config.Arch.String()
	}
	return json.MarshalIndent(out, "", "  ")
}

func toVariantJSON(variants []Variant) []variantJSON {
	out := make([]variantJSON, len(variants))
	for i, v := range variants {
		out[i] = variantJSON{
			Name:         v.Name,
			Target:       v.Target.String(),
			Specificity:  v.Target.Specificity(),
			Priority:     v.Priority,
			Satisfaction: v.Satisfaction,
		}
	}
	return out
}

// ToText outputs a human-readable description of the plan.
func (p *Plan) ToText() string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Dispatch plan for %s\n", p.Signature.String()))
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	if p.Requested != p.Method {
		buf.WriteString(fmt.Sprintf("Method: %s (requested %s)\n", p.Method, p.Requested))
	} else {
		buf.WriteString(fmt.Sprintf("Method: %s\n", p.Method))
	}
	buf.WriteString(fmt.Sprintf("Reason: %s\n", p.Reason))
	if c := p.Config.BuildConstraint(); c != "" {
		buf.WriteString(fmt.Sprintf("Build constraint: %s\n", c))
	}
	buf.WriteString("\n")

	buf.WriteString("Priority order:\n")
	for _, v := range p.Variants {
		buf.WriteString(fmt.Sprintf("  %d. %-40s %-24s %s\n", v.Priority+1, v.Name, v.Target, v.Satisfaction))
	}
	baseline := "baseline"
	if !p.BaselineReachable() {
		baseline = "baseline, unreachable"
	}
	buf.WriteString(fmt.Sprintf("  -  %-40s (%s)\n", p.Signature.Name, baseline))

	if len(p.Pruned) > 0 {
		buf.WriteString("\nResolved away:\n")
		for _, v := range p.Pruned {
			buf.WriteString(fmt.Sprintf("  %-43s %-24s %s\n", v.Name, v.Target, v.Satisfaction))
		}
	}

	return buf.String()
}
