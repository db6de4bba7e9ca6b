package diag

// Species — Plasmodium species, closed set. Wire values match what the
// verifier is instructed to emit.
type Species string

const (
	SpeciesFalciparum Species = "Plasmodium falciparum"
	SpeciesVivax      Species = "Plasmodium vivax"
	SpeciesMalariae   Species = "Plasmodium malariae"
	SpeciesOvale      Species = "Plasmodium ovale"
	SpeciesNone       Species = "None"
)

func (s Species) Valid() bool {
	switch s {
	case SpeciesFalciparum, SpeciesVivax, SpeciesMalariae, SpeciesOvale, SpeciesNone:
		return true
	}
	return false
}

// Stage — parasite lifecycle stage, closed set.
type Stage string

const (
	StageRing        Stage = "Ring Stage"
	StageTrophozoite Stage = "Trophozoite"
	StageSchizont    Stage = "Schizont"
	StageGametocyte  Stage = "Gametocyte"
	StageNone        Stage = "None"
)

func (s Stage) Valid() bool {
	switch s {
	case StageRing, StageTrophozoite, StageSchizont, StageGametocyte, StageNone:
		return true
	}
	return false
}

// Severity — WHO-derived banding on parasitemia.
type Severity string

const (
	SeverityMild     Severity = "Mild"     // < 1%
	SeverityModerate Severity = "Moderate" // 1-5%
	SeveritySevere   Severity = "Severe"   // > 5%
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// SeverityFor derives severity from parasitemia percent. Uninfected samples
// are always Mild.
func SeverityFor(isInfected bool, parasitemia float64) Severity {
	if !isInfected {
		return SeverityMild
	}
	if parasitemia > 5 {
		return SeveritySevere
	}
	if parasitemia > 1 {
		return SeverityModerate
	}
	return SeverityMild
}

// RiskLevel — lab risk banding. Unknown is the degraded value returned when
// the remote service is unreachable, never produced by a successful call.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskUnknown RiskLevel = "Unknown"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ClassifierOutput is the local CNN's preliminary read of one smear.
// Immutable once produced; confidence is reported in favor of the chosen
// class (0..1), not the raw sigmoid.
type ClassifierOutput struct {
	IsInfected        bool     `json:"isInfected"`
	Confidence        float64  `json:"confidence"`
	Species           Species  `json:"species"`
	SpeciesConfidence float64  `json:"speciesConfidence"`
	Stage             Stage    `json:"stage"`
	StageConfidence   float64  `json:"stageConfidence"`
	Parasitemia       float64  `json:"parasitemia"`
	Severity          Severity `json:"severity"`
	Simulated         bool     `json:"simulated"`
	ProcessingTimeMs  int64    `json:"processingTimeMs"`
}

// VerifierOutput is the parsed, schema-validated response of the remote
// vision model. Confidence is on the 0..100 scale the service reports.
type VerifierOutput struct {
	IsInfected              bool     `json:"isInfected"`
	Species                 Species  `json:"species"`
	Stage                   Stage    `json:"stage"`
	Parasitemia             float64  `json:"parasitemia"`
	Severity                Severity `json:"severity"`
	Confidence              float64  `json:"confidence"`
	Explanation             string   `json:"explanation"`
	TreatmentRecommendation string   `json:"treatmentRecommendation"`
	ClinicalNotes           string   `json:"clinicalNotes"`
}

// DLMetadata carries the local classifier's raw numbers inside a final
// result, for audit only. Confidences here are percent to match the
// verifier's scale.
type DLMetadata struct {
	ProcessingTimeMs  int64   `json:"processingTimeMs"`
	SpeciesConfidence float64 `json:"speciesConfidence"`
	StageConfidence   float64 `json:"stageConfidence"`
	Simulated         bool    `json:"simulated"`
}

// AnalysisResult is the externally visible outcome of one scan. When
// Verified is false the diagnostic fields came from the local classifier
// alone and Explanation/ClinicalNotes carry the unverified-result notice.
type AnalysisResult struct {
	IsInfected              bool       `json:"isInfected"`
	Species                 Species    `json:"species"`
	Stage                   Stage      `json:"stage"`
	Parasitemia             float64    `json:"parasitemia"`
	Severity                Severity   `json:"severity"`
	Confidence              float64    `json:"confidence"`
	Explanation             string     `json:"explanation"`
	TreatmentRecommendation string     `json:"treatmentRecommendation"`
	ClinicalNotes           string     `json:"clinicalNotes"`
	Verified                bool       `json:"verified"`
	DLMetadata              DLMetadata `json:"dlMetadata"`
}

// LabInput is a partial CBC/biochemistry record. Nil means the value is
// unknown; zero is a real measurement and must survive as such.
type LabInput struct {
	Hemoglobin *float64 `json:"hemoglobin,omitempty"` // g/dL
	Platelets  *float64 `json:"platelets,omitempty"`  // 10^3/µL
	WBC        *float64 `json:"wbc,omitempty"`        // cells/µL
	Bilirubin  *float64 `json:"bilirubin,omitempty"`  // mg/dL
	HasFever   *bool    `json:"hasFever,omitempty"`
}

// Empty reports whether no field is populated.
func (l LabInput) Empty() bool {
	return l.Hemoglobin == nil && l.Platelets == nil && l.WBC == nil &&
		l.Bilirubin == nil && l.HasFever == nil
}

type LabRiskResult struct {
	Probability    float64   `json:"probability"` // 0..100
	RiskLevel      RiskLevel `json:"riskLevel"`
	Explanation    string    `json:"explanation"`
	Recommendation string    `json:"recommendation"`
}
