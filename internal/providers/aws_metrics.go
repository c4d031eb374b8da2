package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
)

// awsMetricsClient pulls utilization series from CloudWatch. Only EC2
// instances carry CPU metrics by default; other resource types come back
// without data.
type awsMetricsClient struct {
	cfg aws.Config
}

func (*awsMetricsClient) Provider() string { return "aws" }

func (m *awsMetricsClient) FetchUtilization(ctx context.Context, rec resource.Record, window UtilizationWindow) (resource.UtilizationSample, []scan.CallRecord, error) {
	if rec.Type != resource.TypeCompute {
		return resource.NoData(), nil, nil
	}

	calls := []scan.CallRecord{readCall("aws", "GetMetricStatistics", rec.Region)}

	cfg := m.cfg
	cfg.Region = rec.Region
	client := cloudwatch.NewFromConfig(cfg)

	resp, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String("CPUUtilization"),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(rec.ID)},
		},
		StartTime:  aws.Time(window.Start),
		EndTime:    aws.Time(window.End),
		Period:     aws.Int32(int32(window.Bucket.Seconds())),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return resource.NoData(), calls, errors.ClassifyProvider("aws", rec.Region, err)
	}

	values := make([]float64, 0, len(resp.Datapoints))
	for _, dp := range resp.Datapoints {
		if dp.Average != nil {
			values = append(values, *dp.Average)
		}
	}

	sample := SampleFromSeries(values, window)
	if !sample.HasData {
		return sample, calls, nil
	}

	// Network throughput rounds out the sample; a failure here degrades to
	// a CPU-only sample rather than dropping the resource.
	calls = append(calls, readCall("aws", "GetMetricStatistics", rec.Region))
	netResp, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String("NetworkOut"),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(rec.ID)},
		},
		StartTime:  aws.Time(window.Start),
		EndTime:    aws.Time(window.End),
		Period:     aws.Int32(int32(window.Bucket.Seconds())),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err == nil {
		netValues := make([]float64, 0, len(netResp.Datapoints))
		for _, dp := range netResp.Datapoints {
			if dp.Average != nil {
				netValues = append(netValues, *dp.Average)
			}
		}
		if len(netValues) > 0 {
			sample.ThroughputMean = Mean(netValues)
			sample.ThroughputP95 = Percentile(netValues, 95)
			sample.ThroughputP99 = Percentile(netValues, 99)
		}
	}

	return sample, calls, nil
}
