package classifier

import (
	"time"

	"malaria-scan/internal/diag"
)

// Fixed species/stage candidates for the preliminary guess. The local model
// cannot separate species, so the draw only has to look plausible until the
// verifier corrects it.
var candidates = []struct {
	species diag.Species
	stage   diag.Stage
}{
	{diag.SpeciesFalciparum, diag.StageRing},
	{diag.SpeciesVivax, diag.StageTrophozoite},
	{diag.SpeciesMalariae, diag.StageRing},
}

func pickCandidate(rng *lockedRand) (diag.Species, diag.Stage) {
	c := candidates[rng.Intn(len(candidates))]
	return c.species, c.stage
}

// Simulator synthesizes plausible classifier output when the model artifact
// is unavailable, after a delay in the real inference latency band. Sleep is
// a field so tests can run the branch instantly.
type Simulator struct {
	Rand  *lockedRand
	Sleep func(time.Duration)
}

func (s *Simulator) Predict() diag.ClassifierOutput {
	start := time.Now()
	s.Sleep(time.Duration(800+s.Rand.Float64()*400) * time.Millisecond)

	infected := s.Rand.Float64() > 0.5
	confidence := s.Rand.Float64() * 0.3
	if infected {
		confidence += 0.65
	} else {
		confidence += 0.05
	}

	var parasitemia float64
	if infected {
		parasitemia = s.Rand.Float64()*4 + 0.5
	}

	sp, st := pickCandidate(s.Rand)
	return diag.ClassifierOutput{
		IsInfected:        infected,
		Confidence:        confidence,
		Species:           sp,
		SpeciesConfidence: s.Rand.Float64()*0.2 + 0.65,
		Stage:             st,
		StageConfidence:   s.Rand.Float64()*0.15 + 0.60,
		Parasitemia:       parasitemia,
		Severity:          diag.SeverityFor(infected, parasitemia),
		Simulated:         true,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}
}
