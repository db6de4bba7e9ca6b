package classifier

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/preprocess"
)

func newTestClassifier(seed int64) *Classifier {
	c := New("testdata/does-not-exist", rand.New(rand.NewSource(seed)))
	c.sim.Sleep = func(time.Duration) {} // run the simulated branch instantly
	return c
}

func TestLoadMissingArtifact(t *testing.T) {
	c := newTestClassifier(1)
	err := c.Load()
	var mle *diag.ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
	if c.State() != StateUnavailable {
		t.Fatalf("expected Unavailable, got %s", c.State())
	}

	// Idempotent: a second Load reports the same failure without a retry.
	if err2 := c.Load(); err2 == nil {
		t.Fatal("expected stored load error on second Load")
	}
	if c.State() != StateUnavailable {
		t.Fatalf("state corrupted by second Load: %s", c.State())
	}
}

func TestLoadConcurrentFirstUse(t *testing.T) {
	c := newTestClassifier(2)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Load()
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err == nil {
			t.Fatalf("caller %d: expected load failure", i)
		}
	}
	if c.State() != StateUnavailable {
		t.Fatalf("expected Unavailable, got %s", c.State())
	}
}

func TestCheckContract(t *testing.T) {
	good := Metadata{InputShape: []int64{1, 128, 128, 3}, OutputShape: []int64{1, 1}, ImageSize: 128}
	if err := checkContract(good); err != nil {
		t.Fatalf("good metadata rejected: %v", err)
	}

	bad := []Metadata{
		{InputShape: []int64{1, 64, 64, 3}, OutputShape: []int64{1, 1}, ImageSize: 64},
		{InputShape: []int64{1, 128, 128, 1}, OutputShape: []int64{1, 1}, ImageSize: 128},
		{InputShape: []int64{1, 128, 128, 3}, OutputShape: []int64{1, 7}, ImageSize: 128},
		{InputShape: []int64{128, 128, 3}, OutputShape: []int64{1, 1}, ImageSize: 128},
	}
	for i, m := range bad {
		if err := checkContract(m); err == nil {
			t.Fatalf("case %d: bad metadata accepted: %+v", i, m)
		}
	}
}

func TestPredictUnavailableNeverFails(t *testing.T) {
	c := newTestClassifier(3)
	_ = c.Load()

	tensor := &preprocess.Tensor{Data: make([]float32, preprocess.Size*preprocess.Size*preprocess.Channels)}
	for i := 0; i < 50; i++ {
		out := c.Predict(tensor)
		if !out.Simulated {
			t.Fatal("expected simulated output without a model")
		}
		if out.IsInfected {
			if out.Confidence < 0.65 || out.Confidence > 0.95 {
				t.Fatalf("infected confidence %v outside 0.65-0.95", out.Confidence)
			}
			if out.Parasitemia < 0.5 || out.Parasitemia > 4.5 {
				t.Fatalf("parasitemia %v outside 0.5-4.5", out.Parasitemia)
			}
		} else {
			if out.Confidence < 0.05 || out.Confidence > 0.35 {
				t.Fatalf("clear confidence %v outside 0.05-0.35", out.Confidence)
			}
			if out.Parasitemia != 0 {
				t.Fatalf("uninfected parasitemia %v, want 0", out.Parasitemia)
			}
		}
		if out.Severity != diag.SeverityFor(out.IsInfected, out.Parasitemia) {
			t.Fatalf("severity %s inconsistent with parasitemia %v", out.Severity, out.Parasitemia)
		}
		if !out.Species.Valid() || !out.Stage.Valid() {
			t.Fatalf("invalid species/stage %q/%q", out.Species, out.Stage)
		}
	}
}

func TestSimulatorLatencyBand(t *testing.T) {
	c := newTestClassifier(4)
	var slept time.Duration
	c.sim.Sleep = func(d time.Duration) { slept = d }
	_ = c.Load()

	for i := 0; i < 20; i++ {
		c.Predict(nil)
		if slept < 800*time.Millisecond || slept > 1200*time.Millisecond {
			t.Fatalf("simulated delay %v outside 800-1200ms", slept)
		}
	}
}

func TestSimulatorDeterministicWithSeed(t *testing.T) {
	a := newTestClassifier(42)
	b := newTestClassifier(42)
	_ = a.Load()
	_ = b.Load()

	for i := 0; i < 10; i++ {
		outA := a.Predict(nil)
		outB := b.Predict(nil)
		outA.ProcessingTimeMs = 0
		outB.ProcessingTimeMs = 0
		if outA != outB {
			t.Fatalf("iteration %d: same seed diverged: %+v vs %+v", i, outA, outB)
		}
	}
}

func TestInterpret(t *testing.T) {
	c := newTestClassifier(5)

	out := c.interpret(0.95)
	if !out.IsInfected || out.Confidence != 0.95 {
		t.Fatalf("p=0.95: %+v", out)
	}
	if out.Parasitemia < 3 || out.Parasitemia > 5 {
		t.Fatalf("p=0.95: parasitemia %v outside 3-5 band", out.Parasitemia)
	}
	if out.SpeciesConfidence != 0.65 || out.StageConfidence != 0.60 {
		t.Fatalf("species/stage confidence not flagged low: %+v", out)
	}

	out = c.interpret(0.8)
	if out.Parasitemia < 1 || out.Parasitemia > 3 {
		t.Fatalf("p=0.8: parasitemia %v outside 1-3 band", out.Parasitemia)
	}

	out = c.interpret(0.55)
	if out.Parasitemia < 0.2 || out.Parasitemia > 1.2 {
		t.Fatalf("p=0.55: parasitemia %v outside 0.2-1.2 band", out.Parasitemia)
	}

	out = c.interpret(0.2)
	if out.IsInfected {
		t.Fatal("p=0.2 classified infected")
	}
	if out.Confidence != 0.8 {
		t.Fatalf("p=0.2: confidence %v, want 0.8 (in favor of chosen class)", out.Confidence)
	}
	if out.Parasitemia != 0 || out.Severity != diag.SeverityMild {
		t.Fatalf("p=0.2: %+v", out)
	}

	for i := 0; i < 50; i++ {
		out := c.interpret(c.rng.Float64())
		if out.Severity != diag.SeverityFor(out.IsInfected, out.Parasitemia) {
			t.Fatalf("severity inconsistent: %+v", out)
		}
	}
}

func TestReloadAfterFailure(t *testing.T) {
	c := newTestClassifier(6)
	_ = c.Load()
	if c.State() != StateUnavailable {
		t.Fatalf("setup: %s", c.State())
	}
	// Artifact still missing, but Reload must attempt again rather than
	// return the cached failure.
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload to fail against missing artifact")
	}
	if c.State() != StateUnavailable {
		t.Fatalf("after reload: %s", c.State())
	}
}
