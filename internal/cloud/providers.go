// Package cloud holds static metadata for the supported cloud providers.
package cloud

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Provider identifies a cloud.
type Provider string

const (
	AWS   Provider = "aws"
	Azure Provider = "azure"
	GCP   Provider = "gcp"
)

// DefaultProvider is used when a request names none.
const DefaultProvider = AWS

// DefaultVPCCIDR is the network range used by generated templates.
const DefaultVPCCIDR = "10.0.0.0/16"

// Info describes one provider.
type Info struct {
	Provider         Provider `json:"provider"`
	Name             string   `json:"name"`
	DefaultRegion    string   `json:"default_region"`
	SupportedRegions []string `json:"supported_regions"`
	// ProviderBlock is the Terraform provider name (e.g. "azurerm").
	ProviderBlock  string `json:"provider_block"`
	DefaultVPCCIDR string `json:"default_vpc_cidr"`
}

var catalogue = map[Provider]Info{
	AWS: {
		Provider:      AWS,
		Name:          "AWS",
		DefaultRegion: "us-east-1",
		SupportedRegions: []string{
			"us-east-1", "us-east-2", "us-west-1", "us-west-2",
			"eu-west-1", "eu-west-2", "eu-west-3", "eu-central-1",
			"ap-southeast-1", "ap-southeast-2", "ap-northeast-1",
			"ap-northeast-2", "sa-east-1",
		},
		ProviderBlock:  "aws",
		DefaultVPCCIDR: DefaultVPCCIDR,
	},
	Azure: {
		Provider:      Azure,
		Name:          "Azure",
		DefaultRegion: "eastus",
		SupportedRegions: []string{
			"eastus", "eastus2", "westus", "westus2", "westus3",
			"northcentralus", "southcentralus", "northeurope",
			"westeurope", "southeastasia", "eastasia", "japaneast",
			"japanwest", "brazilsouth", "australiaeast", "australiasoutheast",
		},
		ProviderBlock:  "azurerm",
		DefaultVPCCIDR: DefaultVPCCIDR,
	},
	GCP: {
		Provider:      GCP,
		Name:          "GCP",
		DefaultRegion: "us-central1",
		SupportedRegions: []string{
			"us-central1", "us-east1", "us-east4", "us-west1", "us-west2",
			"us-west3", "northamerica-northeast1", "southamerica-east1",
			"europe-west1", "europe-west2", "europe-west3", "europe-west4",
			"europe-west5", "europe-west6", "asia-east1", "asia-east2",
			"asia-northeast1", "asia-northeast2", "asia-south1", "asia-southeast1",
			"asia-southeast2",
		},
		ProviderBlock:  "google",
		DefaultVPCCIDR: DefaultVPCCIDR,
	},
}

// ErrUnsupportedProvider is returned for providers outside the catalogue.
var ErrUnsupportedProvider = errors.New("unsupported cloud provider")

// Providers lists supported providers in a stable order.
func Providers() []Provider {
	return []Provider{AWS, Azure, GCP}
}

// Lookup returns metadata for name (case-insensitive).
func Lookup(name string) (Info, error) {
	info, ok := catalogue[Provider(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	info.SupportedRegions = slices.Clone(info.SupportedRegions)
	return info, nil
}

// SupportsRegion reports whether region is available.
func (i Info) SupportsRegion(region string) bool {
	return slices.Contains(i.SupportedRegions, region)
}

// ProviderForBlock maps a Terraform provider block name back to a provider.
func ProviderForBlock(block string) (Provider, bool) {
	for _, p := range Providers() {
		if catalogue[p].ProviderBlock == block {
			return p, true
		}
	}
	return "", false
}

// DefaultRegion returns the provider's default region, or "" if unknown.
func DefaultRegion(provider string) string {
	info, err := Lookup(provider)
	if err != nil {
		return ""
	}
	return info.DefaultRegion
}

// IsRegionSupported reports whether provider offers region.
func IsRegionSupported(provider, region string) bool {
	info, err := Lookup(provider)
	if err != nil {
		return false
	}
	return info.SupportsRegion(region)
}
