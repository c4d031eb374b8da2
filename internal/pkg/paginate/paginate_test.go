package paginate

import (
	"context"
	"testing"
	"time"

	"github.com/costscope/costscope/internal/pkg/errors"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestCollectDrainsAllPages(t *testing.T) {
	pages := map[string]struct {
		items []int
		next  string
	}{
		"":   {items: []int{1, 2}, next: "a"},
		"a":  {items: []int{3}, next: "b"},
		"b":  {items: []int{4, 5}, next: ""},
	}

	fetch := func(ctx context.Context, token string) ([]int, string, error) {
		p := pages[token]
		return p.items, p.next, nil
	}

	got, err := Collect(context.Background(), fastPolicy(3), fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Collect() returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCollectDetectsTokenLoop(t *testing.T) {
	fetch := func(ctx context.Context, token string) ([]int, string, error) {
		// the provider hands the same token back forever
		return []int{1}, "stuck", nil
	}

	_, err := Collect(context.Background(), fastPolicy(1), fetch)
	if err == nil {
		t.Fatal("Collect() expected error for repeated token, got nil")
	}
	if !errors.IsIntegrity(err) {
		t.Errorf("Collect() error = %v, want integrity classification", err)
	}
}

func TestCollectRetriesTransientOnly(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCalls   int
		wantErr     bool
	}{
		{
			name:      "transient retried to the attempt bound",
			err:       errors.Transient("throttled", nil),
			wantCalls: 3,
			wantErr:   true,
		},
		{
			name:      "permanent fails immediately",
			err:       errors.Permanent("access denied", nil),
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			fetch := func(ctx context.Context, token string) ([]int, string, error) {
				calls++
				return nil, "", tt.err
			}

			_, err := Collect(context.Background(), fastPolicy(3), fetch)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Collect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("fetch called %d times, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestCollectTransientThenSuccess(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, token string) ([]int, string, error) {
		calls++
		if calls == 1 {
			return nil, "", errors.Transient("throttled", nil)
		}
		return []int{42}, "", nil
	}

	got, err := Collect(context.Background(), fastPolicy(3), fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("Collect() = %v, want [42]", got)
	}
}

func TestEachHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(ctx context.Context, token string) ([]int, string, error) {
		cancel()
		return []int{1}, "next-" + token, nil
	}

	err := Each(ctx, fastPolicy(1), fetch, func(int) {})
	if err != context.Canceled {
		t.Errorf("Each() error = %v, want context.Canceled", err)
	}
}
