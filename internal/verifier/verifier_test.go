package verifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"malaria-scan/internal/diag"
)

const goodResponse = `{
  "isInfected": true,
  "species": "Plasmodium falciparum",
  "stage": "Ring Stage",
  "parasitemia": 2.3,
  "severity": "Moderate",
  "confidence": 92,
  "explanation": "Multiple delicate ring forms observed.",
  "treatmentRecommendation": "Artemether-lumefantrine per WHO guidelines.",
  "clinicalNotes": "Repeat smear in 48h."
}`

func TestParseResponse(t *testing.T) {
	out, err := parseResponse(goodResponse)
	if err != nil {
		t.Fatalf("plain JSON: %v", err)
	}
	if !out.IsInfected || out.Species != diag.SpeciesFalciparum || out.Stage != diag.StageRing {
		t.Fatalf("unexpected parse: %+v", out)
	}
	if out.Parasitemia != 2.3 || out.Severity != diag.SeverityModerate || out.Confidence != 92 {
		t.Fatalf("unexpected parse: %+v", out)
	}
}

func TestParseResponseFenced(t *testing.T) {
	for _, wrapped := range []string{
		"```json\n" + goodResponse + "\n```",
		"```\n" + goodResponse + "\n```",
	} {
		if _, err := parseResponse(wrapped); err != nil {
			t.Fatalf("fenced response rejected: %v", err)
		}
	}
}

func TestParseResponseMissingKey(t *testing.T) {
	// Drop clinicalNotes.
	trimmed := strings.Replace(goodResponse, `,
  "clinicalNotes": "Repeat smear in 48h."`, "", 1)
	_, err := parseResponse(trimmed)
	if err == nil || !strings.Contains(err.Error(), "clinicalNotes") {
		t.Fatalf("expected missing-key error, got %v", err)
	}
}

func TestParseResponseOutOfSetEnum(t *testing.T) {
	cases := []struct{ old, new string }{
		{"Plasmodium falciparum", "Plasmodium knowlesi"},
		{"Ring Stage", "Merozoite"},
		{"Moderate", "Catastrophic"},
	}
	for _, c := range cases {
		if _, err := parseResponse(strings.Replace(goodResponse, c.old, c.new, 1)); err == nil {
			t.Fatalf("out-of-set value %q accepted", c.new)
		}
	}
}

func TestParseResponseBadConfidence(t *testing.T) {
	if _, err := parseResponse(strings.Replace(goodResponse, `"confidence": 92`, `"confidence": 150`, 1)); err == nil {
		t.Fatal("confidence 150 accepted")
	}
}

func TestParseResponseMalformed(t *testing.T) {
	if _, err := parseResponse("The smear shows rings. {broken"); err == nil {
		t.Fatal("malformed response accepted")
	}
}

type fakeVision struct {
	resp      string
	err       error
	calls     int
	gotPrompt string
}

func (f *fakeVision) GenerateVision(_ context.Context, _ string, _ []byte, prompt string) (string, error) {
	f.calls++
	f.gotPrompt = prompt
	return f.resp, f.err
}

func TestVerify(t *testing.T) {
	fv := &fakeVision{resp: goodResponse}
	v := New(fv)

	prelim := diag.ClassifierOutput{
		IsInfected: true, Species: diag.SpeciesVivax, Stage: diag.StageTrophozoite,
		Parasitemia: 1.5, Severity: diag.SeverityModerate,
	}
	out, err := v.Verify(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", "Adult male, fever 3 days", prelim)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.Species != diag.SpeciesFalciparum {
		t.Fatalf("unexpected output: %+v", out)
	}
	if fv.calls != 1 {
		t.Fatalf("expected single remote call, got %d", fv.calls)
	}
	// The prompt embeds the patient context and the preliminary read.
	for _, frag := range []string{"Adult male, fever 3 days", "Plasmodium vivax", "Trophozoite", "1.50"} {
		if !strings.Contains(fv.gotPrompt, frag) {
			t.Fatalf("prompt missing %q", frag)
		}
	}
}

func TestVerifyTransportError(t *testing.T) {
	v := New(&fakeVision{err: errors.New("boom")})
	_, err := v.Verify(context.Background(), nil, "image/jpeg", "", diag.ClassifierOutput{})
	var ve *diag.VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestVerifySchemaError(t *testing.T) {
	v := New(&fakeVision{resp: `{"isInfected": true}`})
	_, err := v.Verify(context.Background(), nil, "image/jpeg", "", diag.ClassifierOutput{})
	var ve *diag.VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}
