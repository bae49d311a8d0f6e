package terraform

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"text/template"

	"github.com/fyrsmithlabs/devopsd/internal/cloud"
)

// DefaultResources is used when a request names no resources.
var DefaultResources = []string{"vpc", "subnet", "security_group"}

// Request describes what to generate.
type Request struct {
	UserRequest string
	Provider    cloud.Info
	Region      string
	Resources   []string
}

// Generator produces Terraform HCL text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// resourceTemplates maps provider -> logical resource -> HCL block.
var resourceTemplates = map[cloud.Provider]map[string]string{
	cloud.AWS: {
		"vpc": `resource "aws_vpc" "main" {
  cidr_block = "{{.CIDR}}"
  tags = {
    Name = "{{.Prefix}}-vpc"
  }
}`,
		"subnet": `resource "aws_subnet" "main" {
  vpc_id     = aws_vpc.main.id
  cidr_block = "{{.SubnetCIDR}}"
}`,
		"security_group": `resource "aws_security_group" "main" {
  name   = "{{.Prefix}}-sg"
  vpc_id = aws_vpc.main.id
  ingress {
    from_port   = 443
    to_port     = 443
    protocol    = "tcp"
    cidr_blocks = ["{{.CIDR}}"]
  }
}`,
		"s3": `resource "aws_s3_bucket" "main" {
  bucket = "{{.Prefix}}-bucket"
}`,
	},
	cloud.Azure: {
		"vpc": `resource "azurerm_virtual_network" "main" {
  name                = "{{.Prefix}}-vnet"
  address_space       = ["{{.CIDR}}"]
  location            = "{{.Region}}"
  resource_group_name = azurerm_resource_group.main.name
}`,
		"subnet": `resource "azurerm_subnet" "main" {
  name                 = "{{.Prefix}}-subnet"
  resource_group_name  = azurerm_resource_group.main.name
  virtual_network_name = azurerm_virtual_network.main.name
  address_prefixes     = ["{{.SubnetCIDR}}"]
}`,
		"security_group": `resource "azurerm_network_security_group" "main" {
  name                = "{{.Prefix}}-nsg"
  location            = "{{.Region}}"
  resource_group_name = azurerm_resource_group.main.name
}`,
	},
	cloud.GCP: {
		"vpc": `resource "google_compute_network" "main" {
  name                    = "{{.Prefix}}-network"
  auto_create_subnetworks = false
}`,
		"subnet": `resource "google_compute_subnetwork" "main" {
  name          = "{{.Prefix}}-subnet"
  ip_cidr_range = "{{.SubnetCIDR}}"
  region        = "{{.Region}}"
  network       = google_compute_network.main.id
}`,
		"security_group": `resource "google_compute_firewall" "main" {
  name    = "{{.Prefix}}-firewall"
  network = google_compute_network.main.name
  allow {
    protocol = "tcp"
    ports    = ["443"]
  }
}`,
	},
}

var providerTemplates = map[cloud.Provider]string{
	cloud.AWS: `provider "aws" {
  region = "{{.Region}}"
}`,
	cloud.Azure: `provider "azurerm" {
  features {}
}

resource "azurerm_resource_group" "main" {
  name     = "{{.Prefix}}-rg"
  location = "{{.Region}}"
}`,
	cloud.GCP: `provider "google" {
  region = "{{.Region}}"
}`,
}

var outputTemplates = map[cloud.Provider]map[string]string{
	cloud.AWS: {
		"vpc":    "output \"vpc_id\" {\n  value = aws_vpc.main.id\n}",
		"subnet": "output \"subnet_id\" {\n  value = aws_subnet.main.id\n}",
	},
	cloud.Azure: {
		"vpc":    "output \"vpc_id\" {\n  value = azurerm_virtual_network.main.id\n}",
		"subnet": "output \"subnet_id\" {\n  value = azurerm_subnet.main.id\n}",
	},
	cloud.GCP: {
		"vpc":    "output \"vpc_id\" {\n  value = google_compute_network.main.id\n}",
		"subnet": "output \"subnet_id\" {\n  value = google_compute_subnetwork.main.id\n}",
	},
}

type templateData struct {
	Prefix     string
	Region     string
	CIDR       string
	SubnetCIDR string
}

// TemplateGenerator renders HCL from built-in per-provider templates. Resource
// names it does not know are skipped.
type TemplateGenerator struct {
	// Prefix names generated cloud objects. Defaults to "devopsd".
	Prefix string
}

// NewTemplateGenerator creates a TemplateGenerator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{Prefix: "devopsd"}
}

// Generate implements Generator.
func (g *TemplateGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	blocks, ok := resourceTemplates[req.Provider.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", cloud.ErrUnsupportedProvider, req.Provider.Provider)
	}

	region := req.Region
	if region == "" {
		region = req.Provider.DefaultRegion
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "devopsd"
	}
	data := templateData{
		Prefix:     prefix,
		Region:     region,
		CIDR:       req.Provider.DefaultVPCCIDR,
		SubnetCIDR: "10.0.1.0/24",
	}

	resources := req.Resources
	if len(resources) == 0 {
		resources = DefaultResources
	}

	parts := []string{providerTemplates[req.Provider.Provider]}
	var seen []string
	for _, name := range resources {
		if block, ok := blocks[name]; ok && !slices.Contains(seen, name) {
			parts = append(parts, block)
			seen = append(seen, name)
		}
	}
	for _, name := range seen {
		if out, ok := outputTemplates[req.Provider.Provider][name]; ok {
			parts = append(parts, out)
		}
	}

	var buf bytes.Buffer
	for i, part := range parts {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		tmpl, err := template.New("block").Parse(part)
		if err != nil {
			return "", fmt.Errorf("parsing template: %w", err)
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("rendering template: %w", err)
		}
	}
	buf.WriteString("\n")
	return buf.String(), nil
}

// FallbackGenerator tries Primary and, if it fails for any reason other than
// cancellation, Secondary.
type FallbackGenerator struct {
	Primary   Generator
	Secondary Generator
}

// Generate implements Generator.
func (g FallbackGenerator) Generate(ctx context.Context, req Request) (string, error) {
	hcl, err := g.Primary.Generate(ctx, req)
	if err == nil {
		return hcl, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	hcl, ferr := g.Secondary.Generate(ctx, req)
	if ferr != nil {
		return "", fmt.Errorf("primary generator: %w; fallback generator: %w", err, ferr)
	}
	return hcl, nil
}
