package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/costscope/costscope/internal/domain/resource"
)

func TestLoadPriceTableEmbedded(t *testing.T) {
	table, err := LoadPriceTable("")
	if err != nil {
		t.Fatalf("LoadPriceTable() error = %v", err)
	}
	if table.Version == "" {
		t.Error("embedded table has no version pin")
	}

	if _, ok := table.Lookup(resource.TypeCompute, "m5.large", "us-east-1"); !ok {
		t.Error("Lookup(m5.large) missed; expected a default-region row")
	}
	if _, ok := table.StoragePerGB(resource.TypeBlockStorage); !ok {
		t.Error("StoragePerGB(block_storage) missed")
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	table, err := LoadPriceTable("")
	if err != nil {
		t.Fatalf("LoadPriceTable() error = %v", err)
	}
	lower, ok1 := table.Lookup(resource.TypeCompute, "standard_d2s_v3", "eastus")
	upper, ok2 := table.Lookup(resource.TypeCompute, "Standard_D2s_v3", "eastus")
	if !ok1 || !ok2 || lower != upper {
		t.Errorf("case-sensitive lookup: (%v,%v) vs (%v,%v)", lower, ok1, upper, ok2)
	}
}

func TestLoadPriceTableRegionOverride(t *testing.T) {
	doc := `
version: "test"
prices:
  - resource_type: compute_instance
    instance_class: m5.large
    monthly_usd: 70
  - resource_type: compute_instance
    instance_class: m5.large
    region: eu-central-1
    monthly_usd: 84
`
	path := filepath.Join(t.TempDir(), "prices.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPriceTable(path)
	if err != nil {
		t.Fatalf("LoadPriceTable() error = %v", err)
	}

	tests := []struct {
		region string
		want   float64
	}{
		{"eu-central-1", 84},
		{"us-east-1", 70},
	}
	for _, tt := range tests {
		got, ok := table.Lookup(resource.TypeCompute, "m5.large", tt.region)
		if !ok || got != tt.want {
			t.Errorf("Lookup(%s) = (%.0f, %v), want (%.0f, true)", tt.region, got, ok, tt.want)
		}
	}
}

func TestLoadPriceTableRequiresVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	if err := os.WriteFile(path, []byte("prices: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPriceTable(path); err == nil {
		t.Error("LoadPriceTable() expected error for a table without a version pin")
	}
}
