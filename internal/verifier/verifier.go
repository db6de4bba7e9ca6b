// Package verifier sends a smear image plus the local classifier's
// preliminary read to the remote vision model for the authoritative
// diagnosis.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/util"
)

type visionModel interface {
	GenerateVision(ctx context.Context, mime string, image []byte, prompt string) (string, error)
}

type Verifier struct {
	model visionModel
}

func New(model visionModel) *Verifier {
	return &Verifier{model: model}
}

// Verify runs one remote round-trip. No fallback lives here: every failure —
// transport, parse, or schema — surfaces as a VerificationError for the
// fusion controller to handle.
func (v *Verifier) Verify(ctx context.Context, image []byte, mime, patientContext string, prelim diag.ClassifierOutput) (diag.VerifierOutput, error) {
	txt, err := v.model.GenerateVision(ctx, mime, image, buildPrompt(patientContext, prelim))
	if err != nil {
		return diag.VerifierOutput{}, &diag.VerificationError{Err: err}
	}
	out, err := parseResponse(txt)
	if err != nil {
		return diag.VerifierOutput{}, &diag.VerificationError{Err: err}
	}
	return out, nil
}

var requiredKeys = []string{
	"isInfected", "species", "stage", "parasitemia", "severity",
	"confidence", "explanation", "treatmentRecommendation", "clinicalNotes",
}

// parseResponse decodes the model's reply. The response is untyped at this
// boundary: required keys and enum membership are checked before the result
// is trusted, since json.Unmarshal alone cannot tell an absent field from a
// zero one.
func parseResponse(txt string) (diag.VerifierOutput, error) {
	txt = util.StripCodeFences(txt)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(txt), &raw); err != nil {
		return diag.VerifierOutput{}, fmt.Errorf("bad JSON: %w", err)
	}
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			return diag.VerifierOutput{}, fmt.Errorf("missing key %q", k)
		}
	}

	var out diag.VerifierOutput
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return diag.VerifierOutput{}, fmt.Errorf("bad JSON: %w", err)
	}
	if !out.Species.Valid() {
		return diag.VerifierOutput{}, fmt.Errorf("species %q outside allowed set", out.Species)
	}
	if !out.Stage.Valid() {
		return diag.VerifierOutput{}, fmt.Errorf("stage %q outside allowed set", out.Stage)
	}
	if !out.Severity.Valid() {
		return diag.VerifierOutput{}, fmt.Errorf("severity %q outside allowed set", out.Severity)
	}
	if out.Confidence < 0 || out.Confidence > 100 {
		return diag.VerifierOutput{}, fmt.Errorf("confidence %v outside 0-100", out.Confidence)
	}
	return out, nil
}
