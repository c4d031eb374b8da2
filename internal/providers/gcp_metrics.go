package providers

import (
	"context"
	"fmt"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// gcpMetricsClient pulls CPU utilization series from Cloud Monitoring
type gcpMetricsClient struct {
	projectID string
	opts      []option.ClientOption
}

func (*gcpMetricsClient) Provider() string { return "gcp" }

func (m *gcpMetricsClient) FetchUtilization(ctx context.Context, rec resource.Record, window UtilizationWindow) (resource.UtilizationSample, []scan.CallRecord, error) {
	if rec.Type != resource.TypeCompute {
		return resource.NoData(), nil, nil
	}

	calls := []scan.CallRecord{readCall("gcp", "ListTimeSeries", rec.Region)}

	client, err := monitoring.NewMetricClient(ctx, m.opts...)
	if err != nil {
		return resource.NoData(), calls, errors.ClassifyProvider("gcp", rec.Region, err)
	}
	defer client.Close()

	req := &monitoringpb.ListTimeSeriesRequest{
		Name: "projects/" + m.projectID,
		Filter: fmt.Sprintf(
			`metric.type="compute.googleapis.com/instance/cpu/utilization" AND resource.labels.instance_id="%s"`,
			rec.ID,
		),
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(window.Start),
			EndTime:   timestamppb.New(window.End),
		},
		Aggregation: &monitoringpb.Aggregation{
			AlignmentPeriod:  durationpb.New(window.Bucket),
			PerSeriesAligner: monitoringpb.Aggregation_ALIGN_MEAN,
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}

	var values []float64
	it := client.ListTimeSeries(ctx, req)
	for {
		series, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return resource.NoData(), calls, errors.ClassifyProvider("gcp", rec.Region, err)
		}
		for _, point := range series.Points {
			// Cloud Monitoring reports CPU utilization as a 0-1 fraction
			values = append(values, point.GetValue().GetDoubleValue()*100)
		}
	}

	return SampleFromSeries(values, window), calls, nil
}
