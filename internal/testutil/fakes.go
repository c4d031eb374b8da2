// Package testutil provides in-memory fakes for the provider capability
// interfaces and the report store
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/providers"
)

// PageKey addresses one scripted listing
type PageKey struct {
	Type   resource.Type
	Region string
}

// FakeDiscoveryClient serves scripted pages. Pages[key] is the ordered
// page sequence for one (type, region) listing; tokens are "p1", "p2", ...
type FakeDiscoveryClient struct {
	ProviderName string
	Types        []resource.Type
	Globals      []resource.Type // subset of Types listed once per scan
	RegionList   []string
	Pages        map[PageKey][]providers.Page

	// Errs fails the listing for a key on every call
	Errs map[PageKey]error

	// CallOps overrides the operation name recorded per page fetch, for
	// exercising the safety audit
	CallOps map[PageKey]string

	mu      sync.Mutex
	fetches int
}

func (f *FakeDiscoveryClient) Provider() string { return f.ProviderName }

func (f *FakeDiscoveryClient) ResourceTypes() []resource.Type { return f.Types }

func (f *FakeDiscoveryClient) GlobalTypes() []resource.Type { return f.Globals }

func (f *FakeDiscoveryClient) Regions(ctx context.Context) ([]string, []scan.CallRecord, error) {
	return f.RegionList, []scan.CallRecord{f.call("ListRegions", "")}, nil
}

func (f *FakeDiscoveryClient) ListPage(ctx context.Context, req providers.ListRequest) (providers.Page, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()

	key := PageKey{Type: req.Type, Region: req.Region}

	op := "ListResources"
	if custom, ok := f.CallOps[key]; ok {
		op = custom
	}
	page := providers.Page{Calls: []scan.CallRecord{f.call(op, req.Region)}}

	if err, ok := f.Errs[key]; ok {
		return page, err
	}

	pages := f.Pages[key]
	idx := 0
	if req.Token != "" {
		for i := range pages {
			if pageToken(i) == req.Token {
				idx = i
				break
			}
		}
	}
	if idx >= len(pages) {
		return page, nil
	}

	scripted := pages[idx]
	page.Resources = scripted.Resources
	page.NextToken = scripted.NextToken
	if page.NextToken == "" && idx < len(pages)-1 {
		page.NextToken = pageToken(idx + 1)
	}
	return page, nil
}

// Fetches returns how many page fetches were issued
func (f *FakeDiscoveryClient) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *FakeDiscoveryClient) call(op, region string) scan.CallRecord {
	return scan.CallRecord{
		Provider:  f.ProviderName,
		Operation: op,
		Region:    region,
		Timestamp: time.Now().UTC(),
	}
}

func pageToken(i int) string {
	return "p" + string(rune('0'+i))
}

// FakeMetricsClient serves samples by resource ID
type FakeMetricsClient struct {
	ProviderName string
	Samples      map[string]resource.UtilizationSample
	Err          error
}

func (f *FakeMetricsClient) Provider() string { return f.ProviderName }

func (f *FakeMetricsClient) FetchUtilization(ctx context.Context, rec resource.Record, window providers.UtilizationWindow) (resource.UtilizationSample, []scan.CallRecord, error) {
	calls := []scan.CallRecord{{
		Provider:  f.ProviderName,
		Operation: "GetMetricData",
		Region:    rec.Region,
		Timestamp: time.Now().UTC(),
	}}
	if f.Err != nil {
		return resource.NoData(), calls, f.Err
	}
	sample, ok := f.Samples[rec.ID]
	if !ok {
		return resource.NoData(), calls, nil
	}
	return sample, calls, nil
}

// FakePricingClient resolves prices by instance class
type FakePricingClient struct {
	ProviderName string
	Prices       map[string]float64 // instance class -> monthly USD
	Err          error
}

func (f *FakePricingClient) Provider() string { return f.ProviderName }

func (f *FakePricingClient) MonthlyPrice(ctx context.Context, rec resource.Record) (float64, []scan.CallRecord, error) {
	calls := []scan.CallRecord{{
		Provider:  f.ProviderName,
		Operation: "GetProducts",
		Region:    rec.Region,
		Timestamp: time.Now().UTC(),
	}}
	if f.Err != nil {
		return 0, calls, f.Err
	}
	return f.Prices[rec.Attributes[resource.AttrInstanceClass]], calls, nil
}

// FakeBillingClient serves a fixed daily series
type FakeBillingClient struct {
	ProviderName string
	Points       []cost.DataPoint
	Err          error
}

func (f *FakeBillingClient) Provider() string { return f.ProviderName }

func (f *FakeBillingClient) DailyActualCosts(ctx context.Context, days int) ([]cost.DataPoint, []scan.CallRecord, error) {
	calls := []scan.CallRecord{{
		Provider:  f.ProviderName,
		Operation: "GetCostAndUsage",
		Timestamp: time.Now().UTC(),
	}}
	if f.Err != nil {
		return nil, calls, f.Err
	}
	return f.Points, calls, nil
}

// FakeFactory hands out a fixed capability set
type FakeFactory struct {
	ProviderName string
	Cap          providers.Capability
	Err          error
}

func (f *FakeFactory) Provider() string { return f.ProviderName }

func (f *FakeFactory) New(ctx context.Context, creds providers.Credentials) (providers.Capability, error) {
	if f.Err != nil {
		return providers.Capability{}, f.Err
	}
	return f.Cap, nil
}

// FakeReportStore records saved reports in memory
type FakeReportStore struct {
	mu      sync.Mutex
	Reports []*scan.Report
	Err     error
}

func (f *FakeReportStore) SaveReport(ctx context.Context, report *scan.Report) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = append(f.Reports, report)
	return nil
}

// Saved returns the stored reports
func (f *FakeReportStore) Saved() []*scan.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*scan.Report, len(f.Reports))
	copy(out, f.Reports)
	return out
}

// Compute returns a running compute record for tests
func Compute(id, provider, region, class string, sample resource.UtilizationSample) resource.Record {
	return resource.Record{
		ID:       id,
		Name:     id,
		Type:     resource.TypeCompute,
		Provider: provider,
		Region:   region,
		State:    resource.StateRunning,
		Attributes: map[string]string{
			resource.AttrInstanceClass: class,
		},
		DiscoveredAt: time.Now().UTC(),
		Utilization:  sample,
	}
}

// Volume returns a block storage record for tests
func Volume(id, provider, region string, attached bool, sizeGB string) resource.Record {
	state := resource.StateUnattached
	att := "false"
	if attached {
		state = resource.StateAvailable
		att = "true"
	}
	return resource.Record{
		ID:       id,
		Name:     id,
		Type:     resource.TypeBlockStorage,
		Provider: provider,
		Region:   region,
		State:    state,
		Attributes: map[string]string{
			resource.AttrAttached:  att,
			resource.AttrStorageGB: sizeGB,
		},
		DiscoveredAt: time.Now().UTC(),
	}
}
