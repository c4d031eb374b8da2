package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	armstorage "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// AzureFactory builds Azure capability clients
type AzureFactory struct{}

// Provider returns the provider key
func (AzureFactory) Provider() string { return "azure" }

// New builds the Azure capability set from a per-scan service principal.
// Azure offers no utilization metrics backend here; resources proceed with
// explicit no-data samples.
func (AzureFactory) New(ctx context.Context, creds Credentials) (Capability, error) {
	var c AzureCredentials
	if creds.Azure != nil {
		c = *creds.Azure
	}

	cred, err := azidentity.NewClientSecretCredential(c.TenantID, c.ClientID, c.ClientSecret, nil)
	if err != nil {
		return Capability{}, errors.ProviderAuth("azure", err)
	}

	return Capability{
		Discovery: &azureClient{cred: cred, subscriptionID: c.SubscriptionID, location: c.Location},
		Billing:   &azureBillingClient{cred: cred, subscriptionID: c.SubscriptionID},
	}, nil
}

type azureClient struct {
	cred           azcore.TokenCredential
	subscriptionID string
	location       string
}

func (*azureClient) Provider() string { return "azure" }

func (*azureClient) ResourceTypes() []resource.Type {
	return []resource.Type{resource.TypeCompute, resource.TypeObjectStore}
}

// GlobalTypes marks storage accounts as subscription-wide; ARM has no
// location-scoped account listing, so they are drained once per scan.
func (*azureClient) GlobalTypes() []resource.Type {
	return []resource.Type{resource.TypeObjectStore}
}

// Regions enumerates resource-group locations; a scan scoped to a location
// list skips this
func (a *azureClient) Regions(ctx context.Context) ([]string, []scan.CallRecord, error) {
	calls := []scan.CallRecord{readCall("azure", "ResourceGroups.List", a.location)}

	client, err := armresources.NewResourceGroupsClient(a.subscriptionID, a.cred, nil)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("azure", a.location, err)
	}

	seen := map[string]struct{}{}
	var regions []string
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, calls, errors.ClassifyProvider("azure", a.location, err)
		}
		for _, rg := range page.Value {
			if rg.Location == nil {
				continue
			}
			if _, ok := seen[*rg.Location]; !ok {
				seen[*rg.Location] = struct{}{}
				regions = append(regions, *rg.Location)
			}
		}
	}
	if len(regions) == 0 {
		regions = []string{nonEmpty(a.location, "eastus")}
	}
	return regions, calls, nil
}

// ListPage drains the ARM pager for one resource type. ARM pagers carry
// their continuation internally, so each type is one logical page.
func (a *azureClient) ListPage(ctx context.Context, req ListRequest) (Page, error) {
	if req.Token != "" {
		return Page{}, nil
	}
	switch req.Type {
	case resource.TypeCompute:
		return a.listVirtualMachines(ctx, req.Region)
	case resource.TypeObjectStore:
		return a.listStorageAccounts(ctx)
	default:
		return Page{}, errors.Permanent(fmt.Sprintf("azure: unsupported resource type %s", req.Type), nil)
	}
}

func (a *azureClient) listVirtualMachines(ctx context.Context, region string) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("azure", "VirtualMachines.ListByLocation", region)}}

	client, err := armcompute.NewVirtualMachinesClient(a.subscriptionID, a.cred, nil)
	if err != nil {
		return page, errors.ClassifyProvider("azure", region, err)
	}

	// scoped server-side so each region task spends its own budget only
	pager := client.NewListByLocationPager(region, nil)
	for pager.More() {
		vmPage, err := pager.NextPage(ctx)
		if err != nil {
			return page, errors.ClassifyProvider("azure", region, err)
		}
		for _, vm := range vmPage.Value {
			name := "vm"
			if vm.Name != nil {
				name = *vm.Name
			}
			id := name
			if vm.ID != nil {
				id = *vm.ID
			}

			attrs := map[string]string{}
			if vm.Properties != nil && vm.Properties.HardwareProfile != nil && vm.Properties.HardwareProfile.VMSize != nil {
				attrs[resource.AttrInstanceClass] = string(*vm.Properties.HardwareProfile.VMSize)
			}

			page.Resources = append(page.Resources, resource.Record{
				ID:           id,
				Name:         name,
				Type:         resource.TypeCompute,
				Provider:     "azure",
				Region:       region,
				State:        resource.StateUnknown,
				Attributes:   attrs,
				DiscoveredAt: time.Now().UTC(),
			})
		}
	}
	return page, nil
}

// listStorageAccounts drains the subscription-wide account listing once;
// each record carries the account's own location.
func (a *azureClient) listStorageAccounts(ctx context.Context) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("azure", "StorageAccounts.List", RegionGlobal)}}

	client, err := armstorage.NewAccountsClient(a.subscriptionID, a.cred, nil)
	if err != nil {
		return page, errors.ClassifyProvider("azure", RegionGlobal, err)
	}

	pager := client.NewListPager(nil)
	for pager.More() {
		acctPage, err := pager.NextPage(ctx)
		if err != nil {
			return page, errors.ClassifyProvider("azure", RegionGlobal, err)
		}
		for _, acct := range acctPage.Value {
			name := "storage"
			if acct.Name != nil {
				name = *acct.Name
			}
			id := name
			if acct.ID != nil {
				id = *acct.ID
			}
			region := RegionGlobal
			if acct.Location != nil {
				region = strings.ToLower(*acct.Location)
			}

			attrs := map[string]string{}
			if acct.SKU != nil && acct.SKU.Name != nil {
				attrs["sku"] = string(*acct.SKU.Name)
			}

			page.Resources = append(page.Resources, resource.Record{
				ID:           id,
				Name:         name,
				Type:         resource.TypeObjectStore,
				Provider:     "azure",
				Region:       region,
				State:        resource.StateAvailable,
				Attributes:   attrs,
				DiscoveredAt: time.Now().UTC(),
			})
		}
	}
	return page, nil
}
