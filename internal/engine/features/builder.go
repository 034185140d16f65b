// Package features turns the structured fields of a patient case into the
// fixed-length numeric vector consumed by the structured classifier.  Building
// is a pure function: no I/O, no model state, and validation failures surface
// before any model work begins.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// Feature vector layout.  The classifier artifact references features by
// index, so the order here is part of the model contract and must match the
// training pipeline.
const (
	FeatureAge = iota
	FeatureSexMale
	FeatureSystolic
	FeatureDiastolic
	FeatureCholesterol
	FeatureBloodGlucose
	FeatureHDL
	FeatureLDL
	FeatureBUN
	FeatureCreatinine
	FeatureHbA1c
	FeatureBMI

	VectorSize
)

// FeatureNames maps indices to the names used in the classifier artifact.
var FeatureNames = [VectorSize]string{
	FeatureAge:          "age",
	FeatureSexMale:      "sex_male",
	FeatureSystolic:     "systolic_bp",
	FeatureDiastolic:    "diastolic_bp",
	FeatureCholesterol:  "cholesterol",
	FeatureBloodGlucose: "blood_glucose",
	FeatureHDL:          "hdl",
	FeatureLDL:          "ldl",
	FeatureBUN:          "bun",
	FeatureCreatinine:   "creatinine",
	FeatureHbA1c:        "hba1c",
	FeatureBMI:          "bmi",
}

// MaxAge is the inclusive upper bound accepted for patient age.
const MaxAge = 150

// Validate checks the structured fields of a patient case.  It returns a
// COMMON_010 validation error naming the first offending field, or nil.
func Validate(pc *diagnosis.PatientCase) error {
	if pc == nil {
		return errors.Validation("patient case is required")
	}
	if pc.Age < 0 || pc.Age > MaxAge {
		return errors.Validation("age must be between 0 and 150").
			WithDetail(fmt.Sprintf("got=%d", pc.Age))
	}
	if _, err := diagnosis.ParseGender(string(pc.Gender)); err != nil {
		return err
	}
	if pc.BloodPressure != nil {
		if _, _, err := parseBloodPressure(*pc.BloodPressure); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"cholesterol":   pc.Cholesterol,
		"blood_glucose": pc.BloodGlucose,
		"hdl":           pc.HDL,
		"ldl":           pc.LDL,
		"bun":           pc.BUN,
		"creatinine":    pc.Creatinine,
		"height_cm":     pc.HeightCm,
		"weight_kg":     pc.WeightKg,
	} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.Validation(name + " must be a non-negative number")
		}
	}
	if pc.HbA1c != nil && (*pc.HbA1c < 0 || *pc.HbA1c > 20) {
		return errors.Validation("hba1c must be between 0 and 20")
	}
	return nil
}

// Build validates pc and produces its feature vector.  Missing optional
// vitals encode as NaN; the classifier routes missing values down the left
// branch of each split.
func Build(pc *diagnosis.PatientCase) ([]float64, error) {
	if err := Validate(pc); err != nil {
		return nil, err
	}

	vec := make([]float64, VectorSize)
	for i := range vec {
		vec[i] = math.NaN()
	}

	vec[FeatureAge] = float64(pc.Age)

	gender, _ := diagnosis.ParseGender(string(pc.Gender))
	switch gender {
	case diagnosis.GenderMale:
		vec[FeatureSexMale] = 1
	case diagnosis.GenderFemale:
		vec[FeatureSexMale] = 0
	}
	// other/unknown stay NaN

	if pc.BloodPressure != nil {
		sys, dia, _ := parseBloodPressure(*pc.BloodPressure)
		vec[FeatureSystolic] = sys
		vec[FeatureDiastolic] = dia
	}
	setIfPresent(vec, FeatureCholesterol, pc.Cholesterol)
	setIfPresent(vec, FeatureBloodGlucose, pc.BloodGlucose)
	setIfPresent(vec, FeatureHDL, pc.HDL)
	setIfPresent(vec, FeatureLDL, pc.LDL)
	setIfPresent(vec, FeatureBUN, pc.BUN)
	setIfPresent(vec, FeatureCreatinine, pc.Creatinine)
	setIfPresent(vec, FeatureHbA1c, pc.HbA1c)

	if pc.HeightCm != nil && pc.WeightKg != nil && *pc.HeightCm > 0 {
		heightM := *pc.HeightCm / 100.0
		vec[FeatureBMI] = *pc.WeightKg / (heightM * heightM)
	}

	return vec, nil
}

func setIfPresent(vec []float64, idx int, v *float64) {
	if v != nil {
		vec[idx] = *v
	}
}

// parseBloodPressure splits a "systolic/diastolic" reading such as "120/80".
func parseBloodPressure(s string) (float64, float64, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return 0, 0, errors.Validation(`blood_pressure must be "systolic/diastolic", e.g. "120/80"`).
			WithDetail("got=" + s)
	}
	sys, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || sys <= 0 {
		return 0, 0, errors.Validation("blood_pressure systolic value is not a positive number").
			WithDetail("got=" + s)
	}
	dia, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || dia <= 0 {
		return 0, 0, errors.Validation("blood_pressure diastolic value is not a positive number").
			WithDetail("got=" + s)
	}
	return sys, dia, nil
}
