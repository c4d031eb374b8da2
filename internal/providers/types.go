// Package providers contains one capability client per cloud provider.
// Capabilities are selected at startup from configuration; a provider a
// client does not support is simply absent from its capability set.
package providers

import (
	"context"
	"time"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/credential"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
)

// Credential aliases for the per-scan material supplied by the auth layer.
// Never logged; never retained past the scan that used it.
type (
	AWSCredentials   = credential.AWS
	AzureCredentials = credential.Azure
	GCPCredentials   = credential.GCP
	Credentials      = credential.Bundle
)

// RegionGlobal is the synthetic region assigned to listings that are not
// region-scoped. Global resource types are discovered by exactly one task
// per scan.
const RegionGlobal = "global"

// ListRequest asks for one page of resources of one type in one region
type ListRequest struct {
	Type   resource.Type
	Region string
	Token  string
}

// Page is one page of discovery results. Calls lists every outbound API
// call the client issued to produce it, for the safety audit.
type Page struct {
	Resources []resource.Record
	NextToken string
	Calls     []scan.CallRecord
}

// UtilizationWindow scopes a metrics query
type UtilizationWindow struct {
	Start  time.Time
	End    time.Time
	Bucket time.Duration
}

// DiscoveryClient lists resources for one provider, read-only.
// GlobalTypes names the subset of ResourceTypes whose listing spans the
// whole account; those are scheduled once under RegionGlobal instead of
// once per region, so each resource is recorded exactly once per scan.
type DiscoveryClient interface {
	Provider() string
	ResourceTypes() []resource.Type
	GlobalTypes() []resource.Type
	Regions(ctx context.Context) ([]string, []scan.CallRecord, error)
	ListPage(ctx context.Context, req ListRequest) (Page, error)
}

// MetricsClient fetches utilization time series for a discovered resource
type MetricsClient interface {
	Provider() string
	FetchUtilization(ctx context.Context, rec resource.Record, window UtilizationWindow) (resource.UtilizationSample, []scan.CallRecord, error)
}

// PricingClient resolves a live price for a resource's exact configuration.
// Implements the live_api tier of the cost engine.
type PricingClient interface {
	Provider() string
	MonthlyPrice(ctx context.Context, rec resource.Record) (float64, []scan.CallRecord, error)
}

// BillingClient returns ground-truth daily spend for reconciliation
type BillingClient interface {
	Provider() string
	DailyActualCosts(ctx context.Context, days int) ([]cost.DataPoint, []scan.CallRecord, error)
}

// Capability is the full client set one provider offers. Nil fields mean
// the provider has no backend for that concern; downstream stages degrade
// explicitly (no-data samples, static pricing tiers, skipped
// reconciliation).
type Capability struct {
	Discovery DiscoveryClient
	Metrics   MetricsClient
	Pricing   PricingClient
	Billing   BillingClient
}

// Factory builds a capability set bound to one scan's credentials
type Factory interface {
	Provider() string
	New(ctx context.Context, creds Credentials) (Capability, error)
}

func readCall(provider, operation, region string) scan.CallRecord {
	return scan.CallRecord{
		Provider:  provider,
		Operation: operation,
		Region:    region,
		Timestamp: time.Now().UTC(),
	}
}

func nonEmpty(v string, def string) string {
	if v == "" {
		return def
	}
	return v
}
