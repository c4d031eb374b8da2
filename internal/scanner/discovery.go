package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/costscope/costscope/internal/domain/resource"
	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/errors"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/pkg/metrics"
	"github.com/costscope/costscope/internal/pkg/paginate"
	"github.com/costscope/costscope/internal/pkg/ratelimit"
	"github.com/costscope/costscope/internal/providers"
)

// discoveryTask is one (provider, resource type, region) listing unit
type discoveryTask struct {
	client providers.DiscoveryClient
	rtype  resource.Type
	region string
}

// DiscoveryResult aggregates the fan-out outcome. A failed task degrades
// coverage; it never fails the scan unless the failure is an integrity
// violation.
type DiscoveryResult struct {
	Resources []resource.Record
	Calls     []scan.CallRecord
	Failures  []scan.TaskFailure
	Tasks     int
}

// Coverage is the fraction of discovery tasks that succeeded
func (r DiscoveryResult) Coverage() float64 {
	if r.Tasks == 0 {
		return 0
	}
	return float64(r.Tasks-len(r.Failures)) / float64(r.Tasks)
}

// Discoverer fans listing tasks out over a bounded worker pool, gated by
// the shared rate limiter
type Discoverer struct {
	limiter     *ratelimit.Limiter
	retry       paginate.RetryPolicy
	concurrency int
	log         *logger.Logger
}

// NewDiscoverer builds the fan-out stage
func NewDiscoverer(limiter *ratelimit.Limiter, retry paginate.RetryPolicy, concurrency int, log *logger.Logger) *Discoverer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Discoverer{limiter: limiter, retry: retry, concurrency: concurrency, log: log}
}

// Run discovers resources for every scoped provider. The returned error is
// non-nil only for fatal conditions: context cancellation or a pagination
// integrity violation.
func (d *Discoverer) Run(ctx context.Context, scopes []scan.ProviderScope, caps map[string]providers.Capability, progress func(done, total int)) (DiscoveryResult, error) {
	var result DiscoveryResult

	tasks, regionCalls, regionFailures := d.expandTasks(ctx, scopes, caps)
	result.Calls = append(result.Calls, regionCalls...)
	result.Failures = append(result.Failures, regionFailures...)
	result.Tasks = len(tasks) + len(regionFailures)

	if len(tasks) == 0 {
		return result, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fatalErr error
		done     int
		sem      = make(chan struct{}, d.concurrency)
	)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, t := range tasks {
		select {
		case sem <- struct{}{}:
		case <-taskCtx.Done():
		}
		if taskCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(t discoveryTask) {
			defer wg.Done()
			defer func() { <-sem }()

			recs, calls, err := d.runTask(taskCtx, t)

			mu.Lock()
			defer mu.Unlock()
			result.Calls = append(result.Calls, calls...)
			done++
			if progress != nil {
				progress(done, len(tasks))
			}

			if err != nil {
				if errors.IsIntegrity(err) {
					// unverifiable inventory; stop everything
					if fatalErr == nil {
						fatalErr = err
					}
					cancel()
				}
				metrics.RecordDiscoveryTask(t.client.Provider(), string(t.rtype), "failure")
				result.Failures = append(result.Failures, scan.TaskFailure{
					Provider:     t.client.Provider(),
					ResourceType: t.rtype,
					Region:       t.region,
					Error:        err.Error(),
				})
				d.log.WithFields(map[string]interface{}{
					"provider":      t.client.Provider(),
					"resource_type": t.rtype,
					"region":        t.region,
				}).WithError(err).Warn("discovery task failed")
				return
			}

			metrics.RecordDiscoveryTask(t.client.Provider(), string(t.rtype), "success")
			metrics.RecordResources(t.client.Provider(), string(t.rtype), len(recs))
			result.Resources = append(result.Resources, recs...)
		}(t)
	}
	wg.Wait()

	if fatalErr != nil {
		return result, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// expandTasks resolves each scope's regions and crosses them with the
// provider's resource types. Types the client declares global are scheduled
// as a single task so account-wide listings are recorded once, not once per
// region. A region-listing failure fails the whole provider scope, recorded
// as a single task failure.
func (d *Discoverer) expandTasks(ctx context.Context, scopes []scan.ProviderScope, caps map[string]providers.Capability) ([]discoveryTask, []scan.CallRecord, []scan.TaskFailure) {
	var (
		tasks    []discoveryTask
		calls    []scan.CallRecord
		failures []scan.TaskFailure
	)

	for _, scope := range scopes {
		cap, ok := caps[scope.Provider]
		if !ok || cap.Discovery == nil {
			failures = append(failures, scan.TaskFailure{
				Provider: scope.Provider,
				Error:    "provider not available",
			})
			continue
		}

		regions := scope.Regions
		if len(regions) == 0 {
			var (
				regionCalls []scan.CallRecord
				err         error
			)
			regions, regionCalls, err = cap.Discovery.Regions(ctx)
			calls = append(calls, regionCalls...)
			if err != nil {
				failures = append(failures, scan.TaskFailure{
					Provider: scope.Provider,
					Error:    "region listing failed: " + err.Error(),
				})
				continue
			}
		}

		global := make(map[resource.Type]struct{})
		for _, rtype := range cap.Discovery.GlobalTypes() {
			global[rtype] = struct{}{}
		}

		for _, rtype := range cap.Discovery.ResourceTypes() {
			if _, ok := global[rtype]; ok {
				tasks = append(tasks, discoveryTask{client: cap.Discovery, rtype: rtype, region: providers.RegionGlobal})
				continue
			}
			for _, region := range regions {
				tasks = append(tasks, discoveryTask{client: cap.Discovery, rtype: rtype, region: region})
			}
		}
	}
	return tasks, calls, failures
}

// runTask drains every page of one listing under the shared rate budget
func (d *Discoverer) runTask(ctx context.Context, t discoveryTask) ([]resource.Record, []scan.CallRecord, error) {
	var calls []scan.CallRecord
	provider := t.client.Provider()
	key := provider + ":" + t.region

	fetch := func(ctx context.Context, token string) ([]resource.Record, string, error) {
		if err := d.waitBudget(ctx, provider, key); err != nil {
			return nil, "", err
		}
		page, err := t.client.ListPage(ctx, providers.ListRequest{
			Type:   t.rtype,
			Region: t.region,
			Token:  token,
		})
		calls = append(calls, page.Calls...)
		if err != nil {
			return nil, "", err
		}
		return page.Resources, page.NextToken, nil
	}

	recs, err := paginate.Collect(ctx, d.retry, fetch)
	return recs, calls, err
}

// waitBudget polls the non-blocking limiter until a slot opens or the scan
// is cancelled
func (d *Discoverer) waitBudget(ctx context.Context, provider, key string) error {
	for !d.limiter.Acquire(key) {
		metrics.RecordRateLimitDenial(provider)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return nil
}
