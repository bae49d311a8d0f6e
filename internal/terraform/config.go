// Package terraform generates, parses, validates and (in simulation) deploys
// Terraform configurations.
//
// Parsing is regex based and understands the subset of HCL the generators
// emit: top-level provider, resource, output and variable blocks with at
// most one level of nested braces inside a block body.
package terraform

import (
	"regexp"
	"slices"
	"strings"
)

// Resource is one `resource "type" "name" { ... }` block.
type Resource struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// Output is one `output "name" { ... }` block.
type Output struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// Config is the structured view of a Terraform file.
type Config struct {
	// Provider is the provider block name (aws, azurerm, google).
	Provider     string     `json:"provider"`
	ProviderBody string     `json:"-"`
	Resources    []Resource `json:"resources"`
	Outputs      []Output   `json:"outputs"`
	Variables    []string   `json:"variables"`
}

var (
	resourcePattern = regexp.MustCompile(`(?s)resource\s+"(\w+)"\s+"(\w+)"\s+\{([^}]*(?:\{[^}]*\}[^}]*)*)\}`)
	outputPattern   = regexp.MustCompile(`(?s)output\s+"(\w+)"\s+\{([^}]*(?:\{[^}]*\}[^}]*)*)\}`)
	providerPattern = regexp.MustCompile(`(?s)provider\s+"(\w+)"\s+\{([^}]*(?:\{[^}]*\}[^}]*)*)\}`)
	variablePattern = regexp.MustCompile(`variable\s+"(\w+)"`)
)

// Parse extracts blocks from HCL text. It never fails; unrecognised text is
// ignored and Validate reports what is missing.
func Parse(hcl string) *Config {
	cfg := &Config{}

	if m := providerPattern.FindStringSubmatch(hcl); m != nil {
		cfg.Provider = m[1]
		cfg.ProviderBody = strings.TrimSpace(m[2])
	}
	for _, m := range resourcePattern.FindAllStringSubmatch(hcl, -1) {
		cfg.Resources = append(cfg.Resources, Resource{
			Type: m[1],
			Name: m[2],
			Body: strings.TrimSpace(m[3]),
		})
	}
	for _, m := range outputPattern.FindAllStringSubmatch(hcl, -1) {
		cfg.Outputs = append(cfg.Outputs, Output{
			Name: m[1],
			Body: strings.TrimSpace(m[2]),
		})
	}
	for _, m := range variablePattern.FindAllStringSubmatch(hcl, -1) {
		if !slices.Contains(cfg.Variables, m[1]) {
			cfg.Variables = append(cfg.Variables, m[1])
		}
	}
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Resources = slices.Clone(c.Resources)
	out.Outputs = slices.Clone(c.Outputs)
	out.Variables = slices.Clone(c.Variables)
	return &out
}

// ResourceTypes lists resource types in declaration order.
func (c *Config) ResourceTypes() []string {
	types := make([]string, 0, len(c.Resources))
	for _, r := range c.Resources {
		types = append(types, r.Type)
	}
	return types
}

// HCL renders the configuration back to text. Variables are declared
// without bodies.
func (c *Config) HCL() string {
	var b strings.Builder
	if c.Provider != "" {
		writeBlock(&b, `provider "`+c.Provider+`"`, c.ProviderBody)
	}
	for _, v := range c.Variables {
		writeBlock(&b, `variable "`+v+`"`, "")
	}
	for _, r := range c.Resources {
		writeBlock(&b, `resource "`+r.Type+`" "`+r.Name+`"`, r.Body)
	}
	for _, o := range c.Outputs {
		writeBlock(&b, `output "`+o.Name+`"`, o.Body)
	}
	return b.String()
}

func writeBlock(b *strings.Builder, header, body string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(header)
	if body == "" {
		b.WriteString(" {}\n")
		return
	}
	b.WriteString(" {\n")
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
}
