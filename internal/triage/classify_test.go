package triage

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    ClinicalInput
		expected Bucket
	}{
		{"st elevation with troponin", ClinicalInput{ECGFindings: "ST elevation V1-V4", TroponinLevel: 3.2}, BucketSTEMI},
		{"lower case marker", ClinicalInput{ECGFindings: "anterior st elevation", TroponinLevel: 1.5}, BucketNSTEMI},
		{"upper case marker", ClinicalInput{ECGFindings: "ST ELEVATION inferior", TroponinLevel: 1.5}, BucketNSTEMI},
		{"troponin only", ClinicalInput{ECGFindings: "T wave inversion", TroponinLevel: 2.1}, BucketNSTEMI},
		{"st elevation low troponin", ClinicalInput{ECGFindings: "ST elevation II, III, aVF", TroponinLevel: 0.5}, BucketAngina},
		{"threshold is exclusive", ClinicalInput{ECGFindings: "ST elevation", TroponinLevel: TroponinThreshold}, BucketAngina},
		{"nothing", ClinicalInput{ECGFindings: "", TroponinLevel: 0.02}, BucketAngina},
		{"negative troponin", ClinicalInput{TroponinLevel: -4}, BucketAngina},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.input); got != tc.expected {
				t.Fatalf("expected %s got %s", tc.expected, got)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	inputs := []ClinicalInput{
		{ECGFindings: "ST elevation V1-V4", TroponinLevel: 3.2, Age: 58},
		{ECGFindings: "ST depression", TroponinLevel: 1.01},
		{ECGFindings: "normal sinus rhythm", TroponinLevel: 0},
	}
	for _, in := range inputs {
		first := Classify(in)
		for i := 0; i < 100; i++ {
			if got := Classify(in); got != first {
				t.Fatalf("classification changed for %+v: %s then %s", in, first, got)
			}
		}
	}
}

func TestBuildPromptListsPresentation(t *testing.T) {
	prompt := BuildPrompt(ClinicalInput{Age: 61, TroponinLevel: 3.2, ECGFindings: "ST elevation", ChestPainDuration: 45})
	for _, want := range []string{"Age: 61 years", "Troponin level: 3.2 ng/mL (normal < 0.04)", "Risk factors: None", "45 minutes"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q\n%s", want, prompt)
		}
	}
}
