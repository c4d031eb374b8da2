package scanner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/costscope/costscope/internal/domain/resource"
)

//go:embed prices.yaml
var defaultPriceTable []byte

// StaticPriceTable is the version-pinned local price table backing the
// static_table pricing tier. Keys are (resource type, instance class,
// region); region "default" matches any region without a specific entry.
type StaticPriceTable struct {
	Version string             `yaml:"version"`
	Prices  []StaticPriceEntry `yaml:"prices"`

	index   map[string]float64
	storage map[resource.Type]float64
}

// StaticPriceEntry is one price row. MonthlyUSD prices a whole instance;
// PerGBMonthUSD prices storage capacity.
type StaticPriceEntry struct {
	ResourceType  resource.Type `yaml:"resource_type"`
	InstanceClass string        `yaml:"instance_class,omitempty"`
	Region        string        `yaml:"region,omitempty"`
	MonthlyUSD    float64       `yaml:"monthly_usd,omitempty"`
	PerGBMonthUSD float64       `yaml:"per_gb_month_usd,omitempty"`
}

// LoadPriceTable reads a price table from path, or the embedded default
// when path is empty
func LoadPriceTable(path string) (*StaticPriceTable, error) {
	data := defaultPriceTable
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read price table: %w", err)
		}
	}

	var table StaticPriceTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse price table: %w", err)
	}
	if table.Version == "" {
		return nil, fmt.Errorf("price table has no version pin")
	}

	table.index = make(map[string]float64)
	table.storage = make(map[resource.Type]float64)
	for _, e := range table.Prices {
		if e.PerGBMonthUSD > 0 {
			table.storage[e.ResourceType] = e.PerGBMonthUSD
		}
		if e.MonthlyUSD > 0 {
			table.index[priceKey(e.ResourceType, e.InstanceClass, nonEmptyRegion(e.Region))] = e.MonthlyUSD
		}
	}
	return &table, nil
}

// Lookup resolves a monthly instance price, falling back from the exact
// region to the default row
func (t *StaticPriceTable) Lookup(rt resource.Type, instanceClass, region string) (float64, bool) {
	if v, ok := t.index[priceKey(rt, instanceClass, region)]; ok {
		return v, true
	}
	v, ok := t.index[priceKey(rt, instanceClass, "default")]
	return v, ok
}

// StoragePerGB resolves the per-GB-month storage price for a resource type
func (t *StaticPriceTable) StoragePerGB(rt resource.Type) (float64, bool) {
	v, ok := t.storage[rt]
	return v, ok
}

func priceKey(rt resource.Type, class, region string) string {
	return strings.Join([]string{string(rt), strings.ToLower(class), strings.ToLower(region)}, "|")
}

func nonEmptyRegion(r string) string {
	if r == "" {
		return "default"
	}
	return r
}
