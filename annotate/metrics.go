package annotate

import (
	"gonum.org/v1/gonum/stat"
)

// Metric aggregation kinds. CONFUSION_MATRIX is reserved for confusion-matrix
// metrics; the others apply to scalars.
type Aggregation string

const (
	AggregationArithmeticMean  Aggregation = "ARITHMETIC_MEAN"
	AggregationGeometricMean   Aggregation = "GEOMETRIC_MEAN"
	AggregationHarmonicMean    Aggregation = "HARMONIC_MEAN"
	AggregationSum             Aggregation = "SUM"
	AggregationConfusionMatrix Aggregation = "CONFUSION_MATRIX"
)

// Limits on per-threshold confidence maps.
const (
	MinConfidenceKeys = 2
	MaxConfidenceKeys = 100
)

// reservedMetricNames may not be used as custom metric names; the server
// computes them itself.
var reservedMetricNames = map[string]bool{
	"true_positive_count":  true,
	"false_positive_count": true,
	"true_negative_count":  true,
	"false_negative_count": true,
	"precision":            true,
	"recall":               true,
	"f1":                   true,
	"iou":                  true,
}

func checkMetricName(name string) error {
	if reservedMetricNames[name] {
		return Validationf("metric name %q is reserved", name)
	}
	return nil
}

// ScalarValue is either a single scalar or a per-confidence-threshold map
// with 2..100 entries.
type ScalarValue struct {
	Single       *float64
	PerThreshold map[float64]float64
}

func (v ScalarValue) Validate() error {
	if (v.Single == nil) == (v.PerThreshold == nil) {
		return Validationf("a scalar metric value is either a single number or a confidence map")
	}
	if v.PerThreshold != nil {
		if len(v.PerThreshold) < MinConfidenceKeys || len(v.PerThreshold) > MaxConfidenceKeys {
			return Validationf("a confidence map needs %v..%v entries, got %v", MinConfidenceKeys, MaxConfidenceKeys, len(v.PerThreshold))
		}
		for threshold := range v.PerThreshold {
			if threshold < 0 || threshold > 1 {
				return Validationf("confidence threshold %v outside [0.0, 1.0]", threshold)
			}
		}
	}
	return nil
}

// ScalarMetric is a model-quality scalar attached to a label, optionally
// scoped to a feature and subclass.
type ScalarMetric struct {
	MetricName   string      `json:"metricName,omitempty"`
	FeatureName  string      `json:"featureName,omitempty"`
	SubclassName string      `json:"subclassName,omitempty"`
	Value        ScalarValue `json:"value"`
	Aggregation  Aggregation `json:"aggregation,omitempty"` // Zero value means ARITHMETIC_MEAN
	Extra        map[string]any
}

func (*ScalarMetric) annotation() {}

func (m *ScalarMetric) EffectiveAggregation() Aggregation {
	if m.Aggregation == "" {
		return AggregationArithmeticMean
	}
	return m.Aggregation
}

func (m *ScalarMetric) Validate() error {
	if err := m.Value.Validate(); err != nil {
		return err
	}
	if err := checkMetricName(m.MetricName); err != nil {
		return err
	}
	switch m.EffectiveAggregation() {
	case AggregationArithmeticMean, AggregationGeometricMean, AggregationHarmonicMean, AggregationSum:
		return nil
	default:
		return Validationf("aggregation %v is not valid for a scalar metric", m.Aggregation)
	}
}

// Aggregate collapses the per-threshold map (or single value) with the
// metric's aggregation.
func (m *ScalarMetric) Aggregate() float64 {
	if m.Value.Single != nil {
		return *m.Value.Single
	}
	values := make([]float64, 0, len(m.Value.PerThreshold))
	for _, v := range m.Value.PerThreshold {
		values = append(values, v)
	}
	switch m.EffectiveAggregation() {
	case AggregationGeometricMean:
		// gonum's GeometricMean works on weights=nil
		return stat.GeometricMean(values, nil)
	case AggregationHarmonicMean:
		return stat.HarmonicMean(values, nil)
	case AggregationSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	default:
		return stat.Mean(values, nil)
	}
}

// ConfusionMatrix is (true positives, false positives, true negatives,
// false negatives).
type ConfusionMatrix [4]int

// ConfusionMatrixValue is a single matrix or a per-threshold map of matrices.
type ConfusionMatrixValue struct {
	Single       *ConfusionMatrix
	PerThreshold map[float64]ConfusionMatrix
}

func (v ConfusionMatrixValue) Validate() error {
	if (v.Single == nil) == (v.PerThreshold == nil) {
		return Validationf("a confusion matrix value is either a single matrix or a confidence map")
	}
	if v.PerThreshold != nil {
		if len(v.PerThreshold) < MinConfidenceKeys || len(v.PerThreshold) > MaxConfidenceKeys {
			return Validationf("a confidence map needs %v..%v entries, got %v", MinConfidenceKeys, MaxConfidenceKeys, len(v.PerThreshold))
		}
	}
	return nil
}

// ConfusionMatrixMetric always aggregates as CONFUSION_MATRIX and requires a
// metric name.
type ConfusionMatrixMetric struct {
	MetricName   string               `json:"metricName"`
	FeatureName  string               `json:"featureName,omitempty"`
	SubclassName string               `json:"subclassName,omitempty"`
	Value        ConfusionMatrixValue `json:"value"`
	Extra        map[string]any
}

func (*ConfusionMatrixMetric) annotation() {}

func (m *ConfusionMatrixMetric) Validate() error {
	if m.MetricName == "" {
		return Validationf("a confusion matrix metric needs a metric name")
	}
	if err := checkMetricName(m.MetricName); err != nil {
		return err
	}
	return m.Value.Validate()
}
