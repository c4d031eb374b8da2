package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// azureBillingClient reads daily actual spend from Azure Cost Management
type azureBillingClient struct {
	cred           azcore.TokenCredential
	subscriptionID string
}

func (*azureBillingClient) Provider() string { return "azure" }

func (b *azureBillingClient) DailyActualCosts(ctx context.Context, days int) ([]cost.DataPoint, []scan.CallRecord, error) {
	calls := []scan.CallRecord{readCall("azure", "CostManagement.Query", "")}

	client, err := armcostmanagement.NewQueryClient(b.cred, nil)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("azure", "", err)
	}

	now := time.Now().UTC()
	startDate := now.AddDate(0, 0, -days)
	scope := fmt.Sprintf("subscriptions/%s", b.subscriptionID)

	sumFunc := armcostmanagement.FunctionTypeSum
	granularity := armcostmanagement.GranularityTypeDaily
	timeframeCustom := armcostmanagement.TimeframeTypeCustom
	exportTypeUsage := armcostmanagement.ExportTypeActualCost

	queryDef := armcostmanagement.QueryDefinition{
		Type:      &exportTypeUsage,
		Timeframe: &timeframeCustom,
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &startDate,
			To:   &now,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"PreTaxCost": {
					Name:     ptrStr("PreTaxCost"),
					Function: &sumFunc,
				},
			},
		},
	}

	result, err := client.Usage(ctx, scope, queryDef, nil)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("azure", "", err)
	}
	if result.Properties == nil || result.Properties.Rows == nil {
		return nil, calls, nil
	}

	// Build column index mapping
	colIndex := make(map[string]int)
	for i, col := range result.Properties.Columns {
		if col.Name != nil {
			colIndex[*col.Name] = i
		}
	}
	costIdx, hasCost := colIndex["PreTaxCost"]
	dateIdx, hasDate := colIndex["UsageDateKey"]
	if !hasDate {
		dateIdx, hasDate = colIndex["UsageDate"]
	}

	var points []cost.DataPoint
	for _, row := range result.Properties.Rows {
		if len(row) == 0 {
			continue
		}
		var dailyCost float64
		if hasCost && costIdx < len(row) {
			if v, ok := row[costIdx].(float64); ok {
				dailyCost = v
			}
		}

		var costDate time.Time
		if hasDate && dateIdx < len(row) {
			switch v := row[dateIdx].(type) {
			case float64:
				// Azure returns date as YYYYMMDD integer
				dateInt := int(v)
				costDate = time.Date(dateInt/10000, time.Month((dateInt%10000)/100), dateInt%100, 0, 0, 0, 0, time.UTC)
			case string:
				costDate, _ = time.Parse("2006-01-02", v)
			}
		}
		if costDate.IsZero() {
			continue
		}

		points = append(points, cost.DataPoint{Date: costDate, Cost: dailyCost})
	}
	return points, calls, nil
}

func ptrStr(s string) *string { return &s }
