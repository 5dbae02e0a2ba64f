package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/skymodel/model"
)

func TestAddAndGetSource(t *testing.T) {
	cat := NewSourceCatalog()
	if err := cat.AddSource(&model.Source{ID: "s1", StokesI: 2.5}); err != nil {
		t.Fatalf("AddSource error: %v", err)
	}
	got, err := cat.GetSource("s1")
	if err != nil {
		t.Fatalf("GetSource error: %v", err)
	}
	if got.StokesI != 2.5 {
		t.Fatalf("GetSource returned %#v, want StokesI 2.5", got)
	}
	if _, err := cat.GetSource("missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("GetSource(missing) error = %v, want ErrSourceNotFound", err)
	}
}

func TestAddSourceDuplicate(t *testing.T) {
	cat := NewSourceCatalog()
	if err := cat.AddSource(&model.Source{ID: "s1"}); err != nil {
		t.Fatalf("first AddSource error: %v", err)
	}
	if err := cat.AddSource(&model.Source{ID: "s1"}); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("duplicate AddSource error = %v, want ErrSourceExists", err)
	}
	if err := cat.AddSource(nil); err == nil {
		t.Fatalf("expected AddSource(nil) to fail")
	}
}

func TestBatchFollowsInsertionOrder(t *testing.T) {
	cat := NewSourceCatalog()
	for i := range 5 {
		s := &model.Source{
			ID:            fmt.Sprintf("s-%d", 4-i),
			RA:            float64(i),
			Dec:           -float64(i),
			MajorFWHM:     0.1 * float64(i),
			MinorFWHM:     0.05 * float64(i),
			PositionAngle: 0.2,
		}
		if err := cat.AddSource(s); err != nil {
			t.Fatalf("AddSource error: %v", err)
		}
	}

	batch, ids := cat.Batch()
	if len(ids) != 5 || batch.RA.Len() != 5 {
		t.Fatalf("Batch returned %d ids and %d rows, want 5", len(ids), batch.RA.Len())
	}
	for i, id := range ids {
		if want := fmt.Sprintf("s-%d", 4-i); id != want {
			t.Fatalf("ids[%d] = %q, want %q", i, id, want)
		}
		if batch.RA.Float64()[i] != float64(i) || batch.Dec.Float64()[i] != -float64(i) {
			t.Fatalf("row %d has RA/Dec %v/%v", i, batch.RA.Float64()[i], batch.Dec.Float64()[i])
		}
	}

	list := cat.ListSources()
	if list[0].ID != "s-4" || list[4].ID != "s-0" {
		t.Fatalf("ListSources order = %q..%q, want s-4..s-0", list[0].ID, list[4].ID)
	}
}

func TestApplyOutcomesAndSubscribe(t *testing.T) {
	cat := NewSourceCatalog()
	for _, id := range []string{"a", "b", "c"} {
		if err := cat.AddSource(&model.Source{ID: id, HasGaussian: id == "b"}); err != nil {
			t.Fatalf("AddSource error: %v", err)
		}
	}

	var got []Event
	unsubscribe := cat.Subscribe(func(ev Event) { got = append(got, ev) })

	outcomes := []model.SourceOutcome{
		{Index: 0, Kind: model.OutcomeSucceeded, A: 1, B: 2, C: 3},
		{Index: 1, Kind: model.OutcomeSkipped, Reason: model.SkipFitFailed},
		{Index: 2, Kind: model.OutcomePending},
	}
	if err := cat.ApplyOutcomes([]string{"a", "b", "c"}, outcomes); err != nil {
		t.Fatalf("ApplyOutcomes error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 update events, got %d", len(got))
	}
	if got[0].Type != EventSourceUpdated || got[0].Source.ID != "a" || got[0].Source.GaussianC != 3 {
		t.Fatalf("unexpected first event %#v", got[0])
	}

	a, _ := cat.GetSource("a")
	if !a.HasGaussian || a.GaussianA != 1 || a.GaussianB != 2 {
		t.Fatalf("source a not updated: %#v", a)
	}
	b, _ := cat.GetSource("b")
	if b.HasGaussian {
		t.Fatalf("skipped source b should have HasGaussian cleared")
	}

	unsubscribe()
	if err := cat.ApplyOutcomes([]string{"a", "b", "c"}, outcomes[:1]); err != nil {
		t.Fatalf("ApplyOutcomes error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected no events after unsubscribe, got %d", len(got))
	}
}

func TestApplyOutcomesRejectsBadIndex(t *testing.T) {
	cat := NewSourceCatalog()
	if err := cat.AddSource(&model.Source{ID: "a"}); err != nil {
		t.Fatalf("AddSource error: %v", err)
	}
	err := cat.ApplyOutcomes([]string{"a"}, []model.SourceOutcome{{Index: 3, Kind: model.OutcomeSucceeded}})
	if err == nil {
		t.Fatalf("expected out-of-range index to fail")
	}
	err = cat.ApplyOutcomes([]string{"ghost"}, []model.SourceOutcome{{Index: 0, Kind: model.OutcomeSucceeded}})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("ApplyOutcomes unknown id error = %v, want ErrSourceNotFound", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	cat := NewSourceCatalog()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			if err := cat.AddSource(&model.Source{ID: id}); err != nil {
				t.Errorf("AddSource(%s) error: %v", id, err)
			}
			_ = cat.ListSources()
			_, _ = cat.Batch()
		}(i)
	}
	wg.Wait()

	if got := cat.Len(); got != 50 {
		t.Fatalf("Len = %d, want 50", got)
	}
}
