package providers

import (
	"fmt"

	"github.com/costscope/costscope/internal/config"
)

// Registry maps provider keys to capability factories. Built once at
// startup from configuration; no runtime probing of SDK availability.
type Registry map[string]Factory

// NewRegistry builds factories for the configured providers
func NewRegistry(cfg config.ProviderConfig) (Registry, error) {
	reg := make(Registry, len(cfg.Enabled))
	for _, p := range cfg.Enabled {
		switch p {
		case "aws":
			reg[p] = AWSFactory{}
		case "azure":
			reg[p] = AzureFactory{}
		case "gcp":
			reg[p] = GCPFactory{}
		default:
			return nil, fmt.Errorf("unknown provider %q", p)
		}
	}
	return reg, nil
}
