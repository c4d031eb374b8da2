package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

const awsDiscoveryPageSize = 100

// AWSFactory builds AWS capability clients
type AWSFactory struct{}

// Provider returns the provider key
func (AWSFactory) Provider() string { return "aws" }

// New builds the AWS capability set from per-scan credentials
func (AWSFactory) New(ctx context.Context, creds Credentials) (Capability, error) {
	var c AWSCredentials
	if creds.AWS != nil {
		c = *creds.AWS
	}

	var cfg aws.Config
	var err error
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(nonEmpty(c.Region, "us-east-1")),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(nonEmpty(c.Region, "us-east-1")))
	}
	if err != nil {
		return Capability{}, errors.ProviderAuth("aws", err)
	}

	client := &awsClient{cfg: cfg}
	return Capability{
		Discovery: client,
		Metrics:   &awsMetricsClient{cfg: cfg},
		Pricing:   &awsPricingClient{cfg: cfg},
		Billing:   &awsBillingClient{cfg: cfg},
	}, nil
}

type awsClient struct {
	cfg aws.Config
}

func (*awsClient) Provider() string { return "aws" }

func (*awsClient) ResourceTypes() []resource.Type {
	return []resource.Type{resource.TypeCompute, resource.TypeBlockStorage, resource.TypeObjectStore}
}

// GlobalTypes marks the S3 bucket namespace as account-wide; ListBuckets
// returns every bucket regardless of the client region.
func (*awsClient) GlobalTypes() []resource.Type {
	return []resource.Type{resource.TypeObjectStore}
}

func (a *awsClient) Regions(ctx context.Context) ([]string, []scan.CallRecord, error) {
	calls := []scan.CallRecord{readCall("aws", "DescribeRegions", a.cfg.Region)}

	client := ec2.NewFromConfig(a.cfg)
	resp, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, calls, errors.ClassifyProvider("aws", a.cfg.Region, err)
	}

	regions := make([]string, 0, len(resp.Regions))
	for _, r := range resp.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	if len(regions) == 0 {
		regions = []string{a.cfg.Region}
	}
	return regions, calls, nil
}

func (a *awsClient) ListPage(ctx context.Context, req ListRequest) (Page, error) {
	switch req.Type {
	case resource.TypeCompute:
		return a.listInstances(ctx, req)
	case resource.TypeBlockStorage:
		return a.listVolumes(ctx, req)
	case resource.TypeObjectStore:
		return a.listBuckets(ctx, req)
	default:
		return Page{}, errors.Permanent(fmt.Sprintf("aws: unsupported resource type %s", req.Type), nil)
	}
}

func (a *awsClient) regional(region string) aws.Config {
	cfg := a.cfg
	cfg.Region = region
	return cfg
}

func (a *awsClient) listInstances(ctx context.Context, req ListRequest) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("aws", "DescribeInstances", req.Region)}}

	client := ec2.NewFromConfig(a.regional(req.Region))
	input := &ec2.DescribeInstancesInput{MaxResults: aws.Int32(awsDiscoveryPageSize)}
	if req.Token != "" {
		input.NextToken = aws.String(req.Token)
	}

	resp, err := client.DescribeInstances(ctx, input)
	if err != nil {
		return page, errors.ClassifyProvider("aws", req.Region, err)
	}

	for _, res := range resp.Reservations {
		for _, inst := range res.Instances {
			id := "unknown"
			if inst.InstanceId != nil {
				id = *inst.InstanceId
			}
			name := id
			for _, t := range inst.Tags {
				if t.Key != nil && *t.Key == "Name" && t.Value != nil {
					name = *t.Value
					break
				}
			}
			state := resource.StateUnknown
			if inst.State != nil && inst.State.Name != "" {
				state = normalizeAWSState(string(inst.State.Name))
			}

			attrs := map[string]string{
				resource.AttrInstanceClass: string(inst.InstanceType),
			}
			if inst.Platform != "" {
				attrs["platform"] = string(inst.Platform)
			}

			page.Resources = append(page.Resources, resource.Record{
				ID:           id,
				Name:         name,
				Type:         resource.TypeCompute,
				Provider:     "aws",
				Region:       req.Region,
				State:        state,
				Attributes:   attrs,
				DiscoveredAt: time.Now().UTC(),
			})
		}
	}

	if resp.NextToken != nil {
		page.NextToken = *resp.NextToken
	}
	return page, nil
}

func (a *awsClient) listVolumes(ctx context.Context, req ListRequest) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("aws", "DescribeVolumes", req.Region)}}

	client := ec2.NewFromConfig(a.regional(req.Region))
	input := &ec2.DescribeVolumesInput{MaxResults: aws.Int32(awsDiscoveryPageSize)}
	if req.Token != "" {
		input.NextToken = aws.String(req.Token)
	}

	resp, err := client.DescribeVolumes(ctx, input)
	if err != nil {
		return page, errors.ClassifyProvider("aws", req.Region, err)
	}

	for _, vol := range resp.Volumes {
		id := "unknown"
		if vol.VolumeId != nil {
			id = *vol.VolumeId
		}
		state := resource.StateAvailable
		attached := len(vol.Attachments) > 0
		if !attached {
			state = resource.StateUnattached
		}

		attrs := map[string]string{
			resource.AttrVolumeType: string(vol.VolumeType),
			resource.AttrAttached:   strconv.FormatBool(attached),
		}
		if vol.Size != nil {
			attrs[resource.AttrStorageGB] = strconv.FormatInt(int64(*vol.Size), 10)
		}

		page.Resources = append(page.Resources, resource.Record{
			ID:           id,
			Name:         id,
			Type:         resource.TypeBlockStorage,
			Provider:     "aws",
			Region:       req.Region,
			State:        state,
			Attributes:   attrs,
			DiscoveredAt: time.Now().UTC(),
		})
	}

	if resp.NextToken != nil {
		page.NextToken = *resp.NextToken
	}
	return page, nil
}

// listBuckets is a single-page, account-wide listing; S3 bucket enumeration
// is global and untokenized, so it runs as one task under RegionGlobal.
func (a *awsClient) listBuckets(ctx context.Context, req ListRequest) (Page, error) {
	page := Page{Calls: []scan.CallRecord{readCall("aws", "ListBuckets", req.Region)}}
	if req.Token != "" {
		return page, nil
	}

	client := s3.NewFromConfig(a.cfg)
	resp, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return page, errors.ClassifyProvider("aws", req.Region, err)
	}

	for _, b := range resp.Buckets {
		name := "bucket"
		if b.Name != nil {
			name = *b.Name
		}
		page.Resources = append(page.Resources, resource.Record{
			ID:           "s3-" + name,
			Name:         name,
			Type:         resource.TypeObjectStore,
			Provider:     "aws",
			Region:       req.Region,
			State:        resource.StateAvailable,
			DiscoveredAt: time.Now().UTC(),
		})
	}
	return page, nil
}

func normalizeAWSState(state string) string {
	switch state {
	case "running":
		return resource.StateRunning
	case "stopped", "stopping":
		return resource.StateStopped
	default:
		return state
	}
}
