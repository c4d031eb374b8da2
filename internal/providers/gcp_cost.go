package providers

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/costscope/costscope/internal/domain/cost"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// gcpBillingClient reads daily actual spend from a BigQuery billing export
type gcpBillingClient struct {
	projectID string
	dataset   string
	opts      []option.ClientOption
}

func (*gcpBillingClient) Provider() string { return "gcp" }

func (b *gcpBillingClient) DailyActualCosts(ctx context.Context, days int) ([]cost.DataPoint, []scan.CallRecord, error) {
	calls := []scan.CallRecord{readCall("gcp", "BigQuery.Query", "global")}

	client, err := bigquery.NewClient(ctx, b.projectID, b.opts...)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("gcp", "global", err)
	}
	defer client.Close()

	startDate := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	query := client.Query(fmt.Sprintf(`
		SELECT
			DATE(usage_start_time) AS cost_date,
			SUM(cost) AS daily_cost
		FROM %s
		WHERE DATE(usage_start_time) >= @start_date
		GROUP BY cost_date
		ORDER BY cost_date`, "`"+b.dataset+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate},
	}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, calls, errors.ClassifyProvider("gcp", "global", err)
	}

	var points []cost.DataPoint
	for {
		var row struct {
			CostDate  bigquery.NullDate `bigquery:"cost_date"`
			DailyCost float64           `bigquery:"daily_cost"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, calls, errors.ClassifyProvider("gcp", "global", err)
		}
		if !row.CostDate.Valid {
			continue
		}
		points = append(points, cost.DataPoint{
			Date: row.CostDate.Date.In(time.UTC),
			Cost: row.DailyCost,
		})
	}
	return points, calls, nil
}
