package qr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rescale/rescale-qr/internal/models"
)

func TestAggregateProgress(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		count   int
		percent float64
		want    float64
	}{
		{"first server start", 0, 4, 0, 0},
		{"second server start", 1, 4, 0, 25},
		{"single server half", 0, 1, 50.5, 50},
		{"clamped above 100", 0, 1, 250, 100.0 / 101.0 * 100},
		{"clamped below 0", 2, 4, -5, 50},
		{"no servers", 0, 0, 30, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AggregateProgress(tt.index, tt.count, tt.percent), 1e-9)
		})
	}
}

func TestAggregateProgress_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "servers")
		percent := rapid.Float64Range(0, 100).Draw(t, "percent")
		weight := 100.0 / float64(n)

		prev := -1.0
		for i := 0; i < n; i++ {
			v := AggregateProgress(i, n, percent)
			if v < prev {
				t.Fatalf("not monotonic: index %d gave %v after %v", i, v, prev)
			}
			// Never reaches the next server's starting value
			if v >= float64(i+1)*weight {
				t.Fatalf("index %d percent %v overshoots: %v >= %v", i, percent, v, float64(i+1)*weight)
			}
			if v < 0 || v > 100 {
				t.Fatalf("out of range: %v", v)
			}
			prev = v
		}
	})
}

func collect(values *[]models.Progress) ProgressSink {
	return func(p models.Progress) { *values = append(*values, p) }
}

func TestQuerySession_FinalProgressIs100(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "servers")
		names := make([]string, n)
		q := newFakeQuerier()
		for i := range names {
			names[i] = fmt.Sprintf("S%d", i)
			q.results[names[i]] = []string{fmt.Sprintf("1.2.%d", i)}
		}

		var got []models.Progress
		res := NewQuerySession(q, "CALLER", nil).Run(context.Background(), servers(names...), models.Filters{}, &memStore{}, collect(&got))

		if len(res.Failures) != 0 {
			t.Fatalf("unexpected failures: %v", res.Failures)
		}
		last := got[len(got)-1]
		if last.Value != 100 {
			t.Fatalf("final progress = %v, want 100", last.Value)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Value < got[i-1].Value {
				t.Fatalf("progress went backwards: %v then %v", got[i-1].Value, got[i].Value)
			}
		}
	})
}

func TestQuerySession_LastWriterWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "servers")
		pool := []string{"1.1", "1.2", "1.3", "1.4", "1.5"}

		q := newFakeQuerier()
		names := make([]string, n)
		wantOwner := map[string]string{}
		for i := range names {
			names[i] = fmt.Sprintf("S%d", i)
			uids := rapid.SliceOfDistinct(rapid.SampledFrom(pool), func(s string) string { return s }).Draw(t, names[i])
			q.results[names[i]] = uids
			for _, uid := range uids {
				wantOwner[uid] = names[i]
			}
		}

		res := NewQuerySession(q, "CALLER", nil).Run(context.Background(), servers(names...), models.Filters{}, &memStore{}, nil)

		if res.Index.Len() != len(wantOwner) {
			t.Fatalf("index has %d studies, want %d", res.Index.Len(), len(wantOwner))
		}
		for uid, want := range wantOwner {
			owner, ok := res.Index.Owner(uid)
			if !ok {
				t.Fatalf("study %s has no owner", uid)
			}
			if owner.Server != want {
				t.Fatalf("study %s owned by %s, want %s", uid, owner.Server, want)
			}
		}
	})
}

func TestQuerySession_FailureIsolation(t *testing.T) {
	q := newFakeQuerier()
	q.results["A"] = []string{"s1"}
	q.errs["B"] = errConnRefused
	q.results["C"] = []string{"s2"}

	var got []models.Progress
	var failed []*ServerQueryError
	session := NewQuerySession(q, "CALLER", nil)
	session.OnFailure = func(e *ServerQueryError) { failed = append(failed, e) }

	res := session.Run(context.Background(), servers("A", "B", "C"), models.Filters{}, &memStore{}, collect(&got))

	assert.Equal(t, []string{"A", "B", "C"}, q.Calls())
	assert.Equal(t, []string{"s1", "s2"}, res.Index.UIDs())

	owner, ok := res.Index.Owner("s1")
	require.True(t, ok)
	assert.Equal(t, "A", owner.Server)
	owner, ok = res.Index.Owner("s2")
	require.True(t, ok)
	assert.Equal(t, "C", owner.Server)
	assert.Empty(t, res.Index.OwnedBy("B"))

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "B", res.Failures[0].Server)
	assert.Equal(t, 1, res.Failures[0].ServerIndex)
	assert.Equal(t, "Query error: B", res.Failures[0].Label())
	assert.True(t, errors.Is(res.Failures[0], errConnRefused))
	assert.Len(t, failed, 1)

	assert.False(t, res.Cancelled)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Succeeded())
	assert.Equal(t, 100.0, got[len(got)-1].Value)
}

func TestQuerySession_CancelAfterServerK(t *testing.T) {
	for k := 0; k < 3; k++ {
		t.Run(fmt.Sprintf("after server %d", k), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			names := []string{"A", "B", "C", "D"}
			q := newFakeQuerier()
			for i, n := range names {
				q.results[n] = []string{fmt.Sprintf("s%d", i)}
			}
			q.after = func(qc *models.QueryContext) {
				if qc.Server == names[k] {
					cancel()
				}
			}

			var got []models.Progress
			res := NewQuerySession(q, "CALLER", nil).Run(ctx, servers(names...), models.Filters{}, &memStore{}, collect(&got))

			assert.True(t, res.Cancelled)
			assert.Equal(t, k+1, res.Attempted)
			assert.Equal(t, names[:k+1], q.Calls())
			assert.Equal(t, k+1, res.Index.Len())
			for i := 0; i <= k; i++ {
				owner, ok := res.Index.Owner(fmt.Sprintf("s%d", i))
				require.True(t, ok)
				assert.Equal(t, names[i], owner.Server)
			}
			assert.Equal(t, 100.0, got[len(got)-1].Value)
			assert.Equal(t, "Query cancelled", got[len(got)-1].Label)
		})
	}
}

func TestQuerySession_InFlightQueryIsNotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newFakeQuerier()
	q.results["A"] = []string{"s1"}
	var sawCancelled bool
	q.before = func(opCtx context.Context, _ *models.QueryContext, _ ProgressFunc) {
		cancel()
		sawCancelled = opCtx.Err() != nil
	}

	res := NewQuerySession(q, "CALLER", nil).Run(ctx, servers("A", "B"), models.Filters{}, &memStore{}, nil)

	assert.False(t, sawCancelled, "operation context must not be cancelled")
	assert.Equal(t, 1, res.Index.Len(), "in-flight query completes")
	assert.True(t, res.Cancelled)
	assert.Equal(t, []string{"A"}, q.Calls())
}

func TestQuerySession_LateProgressDropped(t *testing.T) {
	q := newFakeQuerier()
	q.results["A"] = []string{"s1"}
	q.errs["B"] = errConnRefused

	var saved []ProgressFunc
	q.before = func(_ context.Context, _ *models.QueryContext, progress ProgressFunc) {
		saved = append(saved, progress)
	}

	var got []models.Progress
	NewQuerySession(q, "CALLER", nil).Run(context.Background(), servers("A", "B"), models.Filters{}, &memStore{}, collect(&got))
	count := len(got)

	// Both the successful and the failed operation are unsubscribed
	for _, progress := range saved {
		progress(75, "late")
	}
	assert.Len(t, got, count)
	for _, p := range got {
		assert.NotEqual(t, "late", p.Label)
	}
}

func TestQuerySession_ProgressLabelsAndValues(t *testing.T) {
	q := newFakeQuerier()
	q.results["A"] = []string{"s1"}
	q.results["B"] = []string{"s2"}

	var got []models.Progress
	NewQuerySession(q, "CALLER", nil).Run(context.Background(), servers("A", "B"), models.Filters{}, &memStore{}, collect(&got))

	var labels []string
	for _, p := range got {
		if p.Server == "B" {
			labels = append(labels, p.Label)
			assert.GreaterOrEqual(t, p.Value, 50.0)
			assert.Less(t, p.Value, 100.0)
		}
	}
	assert.Equal(t, []string{"Querying B", "Connecting", "Processing results", "Query complete"}, labels)
}

func TestQuerySession_Contexts(t *testing.T) {
	srvs := servers("A", "B")
	srvs[1].CallingAETitle = "OVERRIDE"
	filters := models.Filters{PatientID: "P1"}

	q := newFakeQuerier()
	res := NewQuerySession(q, "GLOBAL", nil).Run(context.Background(), srvs, filters, &memStore{}, nil)

	require.Len(t, res.Contexts, 2)
	assert.Equal(t, "GLOBAL", res.Contexts["A"].CallingAETitle)
	assert.Equal(t, "OVERRIDE", res.Contexts["B"].CallingAETitle)
	assert.Equal(t, "host-B", res.Contexts["B"].Host)
	assert.Equal(t, "P1", res.Contexts["A"].Filters.PatientID)
}

func TestQuerySession_ConflictsRecorded(t *testing.T) {
	q := newFakeQuerier()
	q.results["A"] = []string{"s1", "s2"}
	q.results["B"] = []string{"s2"}

	var seen []OwnershipConflict
	session := NewQuerySession(q, "CALLER", nil)
	session.OnConflict = func(c OwnershipConflict) { seen = append(seen, c) }
	res := session.Run(context.Background(), servers("A", "B"), models.Filters{}, &memStore{}, nil)

	want := []OwnershipConflict{{StudyUID: "s2", Previous: "A", Current: "B"}}
	assert.Equal(t, want, res.Index.Conflicts())
	assert.Equal(t, want, seen)
	assert.Equal(t, []string{"s1"}, res.Index.OwnedBy("A"))
}

func TestQuerySession_EmptyServerList(t *testing.T) {
	var got []models.Progress
	res := NewQuerySession(newFakeQuerier(), "CALLER", nil).Run(context.Background(), nil, models.Filters{}, &memStore{}, collect(&got))

	assert.Zero(t, res.Attempted)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Value)
}
