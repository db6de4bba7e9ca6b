// Package labrisk estimates malaria likelihood from tabular lab values via
// the remote clinical-reasoning model, with an OCR-style extraction path
// for lab-report images.
package labrisk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/util"
)

type remoteModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateVision(ctx context.Context, mime string, image []byte, prompt string) (string, error)
}

type Predictor struct {
	model remoteModel
}

func New(model remoteModel) *Predictor {
	return &Predictor{model: model}
}

// Unavailable is the safe degraded result. The caller's flow must not block
// on a remote outage, so PredictRisk never fails.
var Unavailable = diag.LabRiskResult{
	Probability:    0,
	RiskLevel:      diag.RiskUnknown,
	Explanation:    "AI service unavailable. Unable to process lab parameters.",
	Recommendation: "Consult a healthcare provider.",
}

// PredictRisk asks the remote model to score the lab panel. Any transport,
// parse, or schema failure degrades to Unavailable.
func (p *Predictor) PredictRisk(ctx context.Context, in diag.LabInput) diag.LabRiskResult {
	txt, err := p.model.GenerateText(ctx, buildRiskPrompt(in))
	if err != nil {
		log.Printf("labrisk: remote call failed: %v", err)
		return Unavailable
	}
	out, err := parseRiskResponse(txt)
	if err != nil {
		log.Printf("labrisk: bad response: %v", err)
		return Unavailable
	}
	return out
}

var riskRequiredKeys = []string{"probability", "riskLevel", "explanation", "recommendation"}

func parseRiskResponse(txt string) (diag.LabRiskResult, error) {
	txt = util.StripCodeFences(txt)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(txt), &raw); err != nil {
		return diag.LabRiskResult{}, fmt.Errorf("bad JSON: %w", err)
	}
	for _, k := range riskRequiredKeys {
		if _, ok := raw[k]; !ok {
			return diag.LabRiskResult{}, fmt.Errorf("missing key %q", k)
		}
	}

	var out diag.LabRiskResult
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return diag.LabRiskResult{}, fmt.Errorf("bad JSON: %w", err)
	}
	if !out.RiskLevel.Valid() {
		return diag.LabRiskResult{}, fmt.Errorf("riskLevel %q outside allowed set", out.RiskLevel)
	}
	if out.Probability < 0 || out.Probability > 100 {
		return diag.LabRiskResult{}, fmt.Errorf("probability %v outside 0-100", out.Probability)
	}
	return out, nil
}

// ExtractFromImage pulls structured lab values out of a report image.
// Best-effort: unreadable or missing fields stay nil (zero is a real lab
// value and must never stand in for "unknown"), and a failed call comes
// back as an empty record rather than an error.
func (p *Predictor) ExtractFromImage(ctx context.Context, image []byte, mime string) diag.LabInput {
	txt, err := p.model.GenerateVision(ctx, mime, image, extractPrompt)
	if err != nil {
		log.Printf("labrisk: extraction failed: %v", err)
		return diag.LabInput{}
	}
	var out diag.LabInput
	if err := json.Unmarshal([]byte(util.StripCodeFences(txt)), &out); err != nil {
		log.Printf("labrisk: bad extraction response: %v", err)
		return diag.LabInput{}
	}
	return out
}

func buildRiskPrompt(in diag.LabInput) string {
	data, _ := json.Marshal(in)
	return fmt.Sprintf(`Act as an Expert Clinical Diagnostic AI. Evaluate the likelihood of Malaria based on the provided Hematology (CBC) and Biochemistry data.

Input Data:
%s

Clinical Logic to Apply:
1. Thrombocytopenia (Low Platelets) is a hallmark of malaria. <150,000 is suspicious, <50,000 is severe.
2. Anemia (Low Hb): Malaria causes hemolysis (destruction of RBCs).
3. Leukopenia (Low WBC): Common, unlike bacterial infections which often cause Leukocytosis.
4. Hyperbilirubinemia: Caused by hemolysis.
5. Fever History: Strong clinical correlate.

Task:
- Calculate a probability score (0-100%%).
- Assign Risk Level (Low, Medium, High).
- 'explanation': Write a clinically sound paragraph explaining *why* the risk is assigned. Explicitly mention which values are abnormal and how they correlate to malaria pathology.
- 'recommendation': Provide the best course of action. (e.g., "Urgent Malaria Smear and RDT required", "Check for Dengue as differential due to severe thrombocytopenia").

RESPONSE FORMAT: Return ONLY a valid JSON object with these exact keys:
{
  "probability": number (0-100),
  "riskLevel": string ("Low", "Medium", or "High"),
  "explanation": string (detailed clinical reasoning),
  "recommendation": string (actionable next steps)
}`, data)
}

const extractPrompt = `Extract the following values from this lab report image:
- Hemoglobin (g/dL)
- Platelet Count (10^3/uL)
- WBC Count (cells/uL)
- Total Bilirubin (mg/dL)

If a value is missing or unclear, omit it or set to null.

RESPONSE FORMAT: Return ONLY a valid JSON object with these keys:
{
  "hemoglobin": number or null,
  "platelets": number or null,
  "wbc": number or null,
  "bilirubin": number or null
}`
