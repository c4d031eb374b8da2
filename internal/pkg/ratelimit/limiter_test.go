package ratelimit

import "testing"

func TestAcquireWithinBurst(t *testing.T) {
	l := New(NewMemoryStore(), Budget{RequestsPerHour: 3600, Burst: 5}, nil)

	for i := 0; i < 5; i++ {
		if !l.Acquire("aws:us-east-1") {
			t.Fatalf("Acquire() denied request %d inside the burst", i+1)
		}
	}
	if l.Acquire("aws:us-east-1") {
		t.Error("Acquire() allowed a request past the burst with the hourly rate exhausted")
	}

	allowed, denied := l.Stats()
	if allowed != 5 || denied != 1 {
		t.Errorf("Stats() = (%d, %d), want (5, 1)", allowed, denied)
	}
}

func TestKeysHaveIndependentBudgets(t *testing.T) {
	l := New(NewMemoryStore(), Budget{RequestsPerHour: 3600, Burst: 1}, nil)

	if !l.Acquire("aws:us-east-1") {
		t.Fatal("first key denied")
	}
	if !l.Acquire("aws:eu-west-1") {
		t.Error("second key shares the first key's budget")
	}
}

func TestBudgetLookup(t *testing.T) {
	budgets := map[string]Budget{
		"aws":           {RequestsPerHour: 100, Burst: 2},
		"aws:us-east-1": {RequestsPerHour: 200, Burst: 3},
	}
	l := New(NewMemoryStore(), Budget{RequestsPerHour: 50, Burst: 1}, budgets)

	tests := []struct {
		key  string
		want Budget
	}{
		{"aws:us-east-1", Budget{RequestsPerHour: 200, Burst: 3}},
		{"aws:eu-west-1", Budget{RequestsPerHour: 100, Burst: 2}},
		{"gcp:global", Budget{RequestsPerHour: 50, Burst: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := l.budget(tt.key); got != tt.want {
				t.Errorf("budget(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}
