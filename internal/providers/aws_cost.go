package providers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

const hoursPerMonth = 730

// awsBillingClient reads ground-truth spend from Cost Explorer.
// Cost Explorer is only accessible from us-east-1.
type awsBillingClient struct {
	cfg aws.Config
}

func (*awsBillingClient) Provider() string { return "aws" }

func (b *awsBillingClient) DailyActualCosts(ctx context.Context, days int) ([]cost.DataPoint, []scan.CallRecord, error) {
	calls := []scan.CallRecord{readCall("aws", "GetCostAndUsage", "us-east-1")}

	cfg := b.cfg
	cfg.Region = "us-east-1"
	client := costexplorer.NewFromConfig(cfg)

	now := time.Now().UTC()
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(now.AddDate(0, 0, -days).Format("2006-01-02")),
			End:   aws.String(now.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
	}

	result, err := client.GetCostAndUsage(ctx, input)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("aws", "us-east-1", err)
	}

	var points []cost.DataPoint
	for _, byTime := range result.ResultsByTime {
		if byTime.TimePeriod == nil || byTime.TimePeriod.Start == nil {
			continue
		}
		date, err := time.Parse("2006-01-02", *byTime.TimePeriod.Start)
		if err != nil {
			continue
		}
		amount := 0.0
		if metric, ok := byTime.Total["UnblendedCost"]; ok && metric.Amount != nil {
			amount, _ = strconv.ParseFloat(*metric.Amount, 64)
		}
		points = append(points, cost.DataPoint{Date: date, Cost: amount})
	}
	return points, calls, nil
}

// awsPricingClient resolves on-demand prices from the AWS Pricing API
type awsPricingClient struct {
	cfg aws.Config
}

func (*awsPricingClient) Provider() string { return "aws" }

func (p *awsPricingClient) MonthlyPrice(ctx context.Context, rec resource.Record) (float64, []scan.CallRecord, error) {
	if rec.Type != resource.TypeCompute {
		return 0, nil, errors.Permanent("aws pricing: only compute instances priced via live API", nil)
	}
	instanceClass := rec.Attributes[resource.AttrInstanceClass]
	if instanceClass == "" {
		return 0, nil, errors.Permanent("aws pricing: resource has no instance class", nil)
	}

	calls := []scan.CallRecord{readCall("aws", "GetProducts", "us-east-1")}

	// The Pricing API is only served from us-east-1 and ap-south-1
	cfg := p.cfg
	cfg.Region = "us-east-1"
	client := pricing.NewFromConfig(cfg)

	resp, err := client.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		MaxResults:  aws.Int32(1),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("instanceType"), Value: aws.String(instanceClass)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("regionCode"), Value: aws.String(rec.Region)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("operatingSystem"), Value: aws.String("Linux")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("tenancy"), Value: aws.String("Shared")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("preInstalledSw"), Value: aws.String("NA")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("capacitystatus"), Value: aws.String("Used")},
		},
	})
	if err != nil {
		return 0, calls, errors.ClassifyProvider("aws", rec.Region, err)
	}
	if len(resp.PriceList) == 0 {
		return 0, calls, errors.Permanent("aws pricing: no product matched "+instanceClass, nil)
	}

	hourly, err := parseOnDemandHourlyUSD(resp.PriceList[0])
	if err != nil {
		return 0, calls, err
	}
	return hourly * hoursPerMonth, calls, nil
}

// parseOnDemandHourlyUSD digs the USD hourly rate out of a PriceList
// document. The document nests terms under generated keys, so both levels
// are walked.
func parseOnDemandHourlyUSD(priceJSON string) (float64, error) {
	var doc struct {
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit map[string]string `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}
	if err := json.Unmarshal([]byte(priceJSON), &doc); err != nil {
		return 0, errors.Permanent("aws pricing: malformed price document", err)
	}

	for _, term := range doc.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			if usd, ok := dim.PricePerUnit["USD"]; ok {
				v, err := strconv.ParseFloat(usd, 64)
				if err != nil {
					continue
				}
				return v, nil
			}
		}
	}
	return 0, errors.Permanent("aws pricing: no USD on-demand dimension found", nil)
}
