package scanner

import (
	"context"
	"testing"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/paginate"
	"github.com/costscope/costscope/internal/pkg/ratelimit"
	"github.com/costscope/costscope/internal/providers"
	"github.com/costscope/costscope/internal/testutil"
)

func testDiscoverer() *Discoverer {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Budget{
		RequestsPerHour: 1000000,
		Burst:           1000,
	}, nil)
	return NewDiscoverer(limiter, paginate.DefaultRetryPolicy(), 4, testLogger())
}

func bucket(name string) resource.Record {
	return resource.Record{
		ID:       "s3-" + name,
		Name:     name,
		Type:     resource.TypeObjectStore,
		Provider: "aws",
		Region:   providers.RegionGlobal,
		State:    resource.StateAvailable,
	}
}

func TestGlobalTypeListedOncePerScan(t *testing.T) {
	disc := &testutil.FakeDiscoveryClient{
		ProviderName: "aws",
		Types:        []resource.Type{resource.TypeCompute, resource.TypeObjectStore},
		Globals:      []resource.Type{resource.TypeObjectStore},
		RegionList:   []string{"us-east-1", "us-west-2", "eu-west-1"},
		Pages: map[testutil.PageKey][]providers.Page{
			{Type: resource.TypeCompute, Region: "us-east-1"}: {
				{Resources: []resource.Record{testutil.Compute("i-east", "aws", "us-east-1", "m5.large", resource.NoData())}},
			},
			{Type: resource.TypeCompute, Region: "us-west-2"}: {
				{Resources: []resource.Record{testutil.Compute("i-west", "aws", "us-west-2", "m5.large", resource.NoData())}},
			},
			{Type: resource.TypeObjectStore, Region: providers.RegionGlobal}: {
				{Resources: []resource.Record{bucket("logs"), bucket("assets")}},
			},
		},
	}
	caps := map[string]providers.Capability{"aws": {Discovery: disc}}

	result, err := testDiscoverer().Run(context.Background(),
		[]scan.ProviderScope{{Provider: "aws"}}, caps, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// one task per region for compute, one task total for the bucket namespace
	if result.Tasks != 4 {
		t.Errorf("Tasks = %d, want 4 (3 compute regions + 1 global listing)", result.Tasks)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", result.Failures)
	}

	counts := map[string]int{}
	for _, rec := range result.Resources {
		counts[rec.ID]++
	}
	for _, id := range []string{"s3-logs", "s3-assets"} {
		if counts[id] != 1 {
			t.Errorf("resource %q recorded %d times, want exactly once", id, counts[id])
		}
	}
	if len(result.Resources) != 4 {
		t.Errorf("Resources = %d, want 4 (2 instances + 2 buckets)", len(result.Resources))
	}
}

func TestGlobalTypeListedOnceWithScopedRegions(t *testing.T) {
	disc := &testutil.FakeDiscoveryClient{
		ProviderName: "aws",
		Types:        []resource.Type{resource.TypeObjectStore},
		Globals:      []resource.Type{resource.TypeObjectStore},
		RegionList:   []string{"us-east-1", "us-west-2"},
		Pages: map[testutil.PageKey][]providers.Page{
			{Type: resource.TypeObjectStore, Region: providers.RegionGlobal}: {
				{Resources: []resource.Record{bucket("logs")}},
			},
		},
	}
	caps := map[string]providers.Capability{"aws": {Discovery: disc}}

	result, err := testDiscoverer().Run(context.Background(),
		[]scan.ProviderScope{{Provider: "aws", Regions: []string{"us-east-1", "us-west-2"}}}, caps, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Tasks != 1 {
		t.Errorf("Tasks = %d, want 1", result.Tasks)
	}
	if len(result.Resources) != 1 {
		t.Errorf("Resources = %d, want the bucket recorded exactly once", len(result.Resources))
	}
}
