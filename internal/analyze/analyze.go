// Package analyze orchestrates one scan: preprocess, local classification,
// remote verification, result fusion. The verifier's answer is authoritative
// when it arrives; the classifier's is the explicitly-labeled fallback.
package analyze

import (
	"context"
	"fmt"
	"log"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/preprocess"
	"malaria-scan/internal/util"
)

type Classifier interface {
	Predict(t *preprocess.Tensor) diag.ClassifierOutput
}

type Verifier interface {
	Verify(ctx context.Context, image []byte, mime, patientContext string, prelim diag.ClassifierOutput) (diag.VerifierOutput, error)
}

type Analyzer struct {
	classifier Classifier
	verifier   Verifier
}

func New(c Classifier, v Verifier) *Analyzer {
	return &Analyzer{classifier: c, verifier: v}
}

// UnverifiedNotice marks every result the remote verifier did not confirm.
// Callers are required to surface it prominently; a DL-only guess presented
// as an expert diagnosis would be a safety defect.
const UnverifiedNotice = "IMPORTANT: AI verification unavailable. This analysis is based on preliminary DL predictions only. Please verify with expert microscopy."

// AnalyzeBase64 accepts a bare or data-URL-prefixed base64 image.
func (a *Analyzer) AnalyzeBase64(ctx context.Context, b64, patientContext string) (diag.AnalysisResult, error) {
	raw, _, err := util.DecodeBase64MaybeDataURL(b64)
	if err != nil {
		return diag.AnalysisResult{}, &diag.DecodeError{Err: err}
	}
	return a.Analyze(ctx, raw, patientContext)
}

// Analyze runs the full pipeline over raw image bytes. The only failure that
// escapes is DecodeError: a result cannot be fabricated from an undecodable
// image. Verifier failure is an expected branch, not an error.
func (a *Analyzer) Analyze(ctx context.Context, raw []byte, patientContext string) (diag.AnalysisResult, error) {
	tensor, err := preprocess.FromBytes(raw)
	if err != nil {
		return diag.AnalysisResult{}, err
	}

	prelim := a.classifier.Predict(tensor)

	mime := util.PickMIME("", "", raw)
	verified, err := a.verifier.Verify(ctx, raw, mime, patientContext, prelim)
	if err != nil {
		log.Printf("analyze: verifier unavailable, returning DL-only result: %v", err)
		return fallbackResult(prelim, err), nil
	}
	return fuse(verified, prelim), nil
}

// fuse takes every diagnostic field from the verifier; the classifier
// contributes audit metadata only.
func fuse(v diag.VerifierOutput, dl diag.ClassifierOutput) diag.AnalysisResult {
	return diag.AnalysisResult{
		IsInfected:              v.IsInfected,
		Species:                 v.Species,
		Stage:                   v.Stage,
		Parasitemia:             v.Parasitemia,
		Severity:                v.Severity,
		Confidence:              v.Confidence,
		Explanation:             v.Explanation,
		TreatmentRecommendation: v.TreatmentRecommendation,
		ClinicalNotes:           v.ClinicalNotes,
		Verified:                true,
		DLMetadata:              metadataFrom(dl),
	}
}

func fallbackResult(dl diag.ClassifierOutput, cause error) diag.AnalysisResult {
	finding := "No parasites detected in preliminary scan"
	if dl.IsInfected {
		finding = fmt.Sprintf("%s detected at %s. Parasitemia: %.2f%%", dl.Species, dl.Stage, dl.Parasitemia)
	}

	treatment := "No immediate treatment indicated based on preliminary scan. If symptoms persist, seek medical evaluation."
	if dl.IsInfected {
		treatment = fmt.Sprintf("Preliminary: %s severity infection. Consult healthcare provider immediately for WHO-compliant treatment. First-line options include Artemisinin-based Combination Therapy (ACT). VERIFY with expert diagnosis before treatment.", dl.Severity)
	}

	return diag.AnalysisResult{
		IsInfected:              dl.IsInfected,
		Species:                 dl.Species,
		Stage:                   dl.Stage,
		Parasitemia:             dl.Parasitemia,
		Severity:                dl.Severity,
		Confidence:              dl.Confidence * 100,
		Explanation:             fmt.Sprintf("Deep Learning preliminary analysis: %s. %s", finding, UnverifiedNotice),
		TreatmentRecommendation: treatment,
		ClinicalNotes: fmt.Sprintf("This is a PRELIMINARY analysis using deep learning only. Expert AI verification failed (%v). "+
			"DO NOT rely solely on this result for clinical decisions. Confirm with expert microscopy by a trained parasitologist, "+
			"a Rapid Diagnostic Test (RDT) if available, and clinical presentation. Seek immediate medical attention if symptoms worsen. %s",
			cause, UnverifiedNotice),
		Verified:   false,
		DLMetadata: metadataFrom(dl),
	}
}

func metadataFrom(dl diag.ClassifierOutput) diag.DLMetadata {
	return diag.DLMetadata{
		ProcessingTimeMs:  dl.ProcessingTimeMs,
		SpeciesConfidence: dl.SpeciesConfidence * 100,
		StageConfidence:   dl.StageConfidence * 100,
		Simulated:         dl.Simulated,
	}
}
