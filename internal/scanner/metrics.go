package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/providers"
)

// Collector enriches discovered resources with utilization samples from
// each provider's metrics backend over a fixed worker pool
type Collector struct {
	workers    int
	windowDays int
	bucket     time.Duration
	log        *logger.Logger
}

// NewCollector builds the metrics stage
func NewCollector(workers, windowDays int, bucket time.Duration, log *logger.Logger) *Collector {
	if workers < 1 {
		workers = 1
	}
	return &Collector{workers: workers, windowDays: windowDays, bucket: bucket, log: log}
}

// Run fetches utilization for every resource in place. A backend failure
// or a provider without a metrics capability yields an explicit no-data
// sample; downstream stages must not read absence as zero load.
func (c *Collector) Run(ctx context.Context, resources []resource.Record, caps map[string]providers.Capability) []scan.CallRecord {
	end := time.Now().UTC()
	window := providers.UtilizationWindow{
		Start:  end.AddDate(0, 0, -c.windowDays),
		End:    end,
		Bucket: c.bucket,
	}

	var (
		mu    sync.Mutex
		calls []scan.CallRecord
		wg    sync.WaitGroup
		jobs  = make(chan int)
	)

	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := &resources[i]
				client := metricsClientFor(caps, rec.Provider)
				if client == nil {
					rec.Utilization = resource.NoData()
					continue
				}

				sample, callRecs, err := client.FetchUtilization(ctx, *rec, window)
				mu.Lock()
				calls = append(calls, callRecs...)
				mu.Unlock()

				if err != nil {
					c.log.WithFields(map[string]interface{}{
						"provider":    rec.Provider,
						"resource_id": rec.ID,
					}).WithError(err).Debug("utilization fetch failed")
					rec.Utilization = resource.NoData()
					continue
				}
				rec.Utilization = sample
			}
		}()
	}

	for i := range resources {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return calls
		}
	}
	close(jobs)
	wg.Wait()
	return calls
}

func metricsClientFor(caps map[string]providers.Capability, provider string) providers.MetricsClient {
	cap, ok := caps[provider]
	if !ok {
		return nil
	}
	return cap.Metrics
}
