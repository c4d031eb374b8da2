package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// GCPFactory builds GCP capability clients
type GCPFactory struct{}

// Provider returns the provider key
func (GCPFactory) Provider() string { return "gcp" }

// New builds the GCP capability set from a per-scan service account
func (GCPFactory) New(ctx context.Context, creds Credentials) (Capability, error) {
	var c GCPCredentials
	if creds.GCP != nil {
		c = *creds.GCP
	}
	if c.ProjectID == "" {
		return Capability{}, errors.ProviderAuth("gcp", fmt.Errorf("project id is required"))
	}

	var opts []option.ClientOption
	if c.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(c.ServiceAccountJSON)))
	}

	cap := Capability{
		Discovery: &gcpClient{projectID: c.ProjectID, opts: opts},
		Metrics:   &gcpMetricsClient{projectID: c.ProjectID, opts: opts},
	}
	if c.BillingDataset != "" {
		cap.Billing = &gcpBillingClient{projectID: c.ProjectID, dataset: c.BillingDataset, opts: opts}
	}
	return cap, nil
}

type gcpClient struct {
	projectID string
	opts      []option.ClientOption
}

func (*gcpClient) Provider() string { return "gcp" }

func (*gcpClient) ResourceTypes() []resource.Type {
	return []resource.Type{resource.TypeCompute, resource.TypeObjectStore}
}

// GlobalTypes is empty because Regions already collapses the project to a
// single task per resource type.
func (*gcpClient) GlobalTypes() []resource.Type { return nil }

// Regions returns a single synthetic region; the aggregated instance list
// already spans every zone in the project.
func (g *gcpClient) Regions(ctx context.Context) ([]string, []scan.CallRecord, error) {
	return []string{RegionGlobal}, nil, nil
}

func (g *gcpClient) ListPage(ctx context.Context, req ListRequest) (Page, error) {
	if req.Token != "" {
		return Page{}, nil
	}
	switch req.Type {
	case resource.TypeCompute:
		return g.listInstances(ctx)
	case resource.TypeObjectStore:
		return g.listBuckets(ctx)
	default:
		return Page{}, errors.Permanent(fmt.Sprintf("gcp: unsupported resource type %s", req.Type), nil)
	}
}

// listInstances walks the aggregated list across all zones
func (g *gcpClient) listInstances(ctx context.Context) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("gcp", "Instances.AggregatedList", "global")}}

	client, err := compute.NewInstancesRESTClient(ctx, g.opts...)
	if err != nil {
		return page, errors.ClassifyProvider("gcp", "global", err)
	}
	defer client.Close()

	it := client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: g.projectID})
	for {
		pair, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return page, errors.ClassifyProvider("gcp", "global", err)
		}
		if pair.Value == nil || pair.Value.Instances == nil {
			continue
		}
		for _, inst := range pair.Value.Instances {
			zone := lastPathSegment(inst.GetZone())
			machineType := lastPathSegment(inst.GetMachineType())

			page.Resources = append(page.Resources, resource.Record{
				ID:       strconv.FormatUint(inst.GetId(), 10),
				Name:     inst.GetName(),
				Type:     resource.TypeCompute,
				Provider: "gcp",
				Region:   zone,
				State:    normalizeGCPState(inst.GetStatus()),
				Attributes: map[string]string{
					resource.AttrInstanceClass: machineType,
				},
				DiscoveredAt: time.Now().UTC(),
			})
		}
	}
	return page, nil
}

func (g *gcpClient) listBuckets(ctx context.Context) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("gcp", "Buckets.List", "global")}}

	client, err := storage.NewClient(ctx, g.opts...)
	if err != nil {
		return page, errors.ClassifyProvider("gcp", "global", err)
	}
	defer client.Close()

	it := client.Buckets(ctx, g.projectID)
	for {
		battrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return page, errors.ClassifyProvider("gcp", "global", err)
		}

		page.Resources = append(page.Resources, resource.Record{
			ID:       "gcs-" + battrs.Name,
			Name:     battrs.Name,
			Type:     resource.TypeObjectStore,
			Provider: "gcp",
			Region:   strings.ToLower(battrs.Location),
			State:    resource.StateAvailable,
			Attributes: map[string]string{
				"storage_class": battrs.StorageClass,
			},
			DiscoveredAt: time.Now().UTC(),
		})
	}
	return page, nil
}

func normalizeGCPState(status string) string {
	switch status {
	case "RUNNING":
		return resource.StateRunning
	case "TERMINATED", "STOPPED", "STOPPING", "SUSPENDED":
		return resource.StateStopped
	default:
		return strings.ToLower(status)
	}
}

func lastPathSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
