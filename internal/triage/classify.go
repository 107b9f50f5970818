package triage

import "strings"

// Bucket is the discrete triage class used to pick canned diagnoses and
// fallback protocols.
type Bucket string

const (
	BucketSTEMI  Bucket = "stemi"
	BucketNSTEMI Bucket = "nstemi"
	BucketAngina Bucket = "angina"
)

// TroponinThreshold is the troponin level (ng/mL) above which the value
// counts as elevated.
const TroponinThreshold = 1.0

// stElevationMarker is matched case-sensitively, so "ST ELEVATION" does not
// count.
const stElevationMarker = "ST elevation"

// ClinicalInput is the presenting picture of a simulated patient.
type ClinicalInput struct {
	ChestPainDuration int      `json:"chest_pain_duration"`
	ECGFindings       string   `json:"ecg_findings"`
	TroponinLevel     float64  `json:"troponin_level"`
	Age               int      `json:"age"`
	RiskFactors       []string `json:"risk_factors"`
	Symptoms          string   `json:"symptoms"`
}

// HasSTElevation reports whether the ECG findings mention ST elevation.
func (in ClinicalInput) HasSTElevation() bool {
	return strings.Contains(in.ECGFindings, stElevationMarker)
}

// HighTroponin reports whether troponin is above the threshold.
func (in ClinicalInput) HighTroponin() bool {
	return in.TroponinLevel > TroponinThreshold
}

// Classify maps an input to exactly one bucket. Rows are ordered by clinical
// severity and the first match wins.
func Classify(in ClinicalInput) Bucket {
	st, trop := in.HasSTElevation(), in.HighTroponin()
	switch {
	case st && trop:
		return BucketSTEMI
	case trop:
		return BucketNSTEMI
	default:
		return BucketAngina
	}
}
