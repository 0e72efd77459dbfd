package annotate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarValue(t *testing.T) {
	require.Error(t, ScalarValue{}.Validate(), "needs one of the two forms")
	require.NoError(t, ScalarValue{Single: Confidence(0.5)}.Validate())
	require.Error(t, ScalarValue{Single: Confidence(0.5), PerThreshold: map[float64]float64{0.1: 1, 0.2: 2}}.Validate())

	require.Error(t, ScalarValue{PerThreshold: map[float64]float64{0.5: 1}}.Validate(), "below minimum entries")
	require.NoError(t, ScalarValue{PerThreshold: map[float64]float64{0.25: 1, 0.75: 2}}.Validate())
	require.Error(t, ScalarValue{PerThreshold: map[float64]float64{0.25: 1, 1.5: 2}}.Validate(), "threshold outside range")

	big := map[float64]float64{}
	for i := 0; i < 101; i++ {
		big[float64(i)/101] = 1
	}
	require.Error(t, ScalarValue{PerThreshold: big}.Validate(), "above maximum entries")
}

func TestScalarMetricValidate(t *testing.T) {
	m := &ScalarMetric{Value: ScalarValue{Single: Confidence(0.7)}}
	require.NoError(t, m.Validate())
	require.Equal(t, AggregationArithmeticMean, m.EffectiveAggregation())

	m.MetricName = "precision"
	require.Error(t, m.Validate(), "reserved name")
	m.MetricName = "my_iou"
	require.NoError(t, m.Validate())

	m.Aggregation = AggregationConfusionMatrix
	require.Error(t, m.Validate(), "matrix aggregation on a scalar")
}

func TestScalarMetricAggregate(t *testing.T) {
	per := map[float64]float64{0.25: 2, 0.5: 8}
	cases := []struct {
		agg  Aggregation
		want float64
	}{
		{AggregationArithmeticMean, 5},
		{AggregationGeometricMean, 4},
		{AggregationHarmonicMean, 3.2},
		{AggregationSum, 10},
	}
	for _, c := range cases {
		m := &ScalarMetric{Value: ScalarValue{PerThreshold: per}, Aggregation: c.agg}
		require.InDelta(t, c.want, m.Aggregate(), 1e-9, "aggregation %v", c.agg)
	}

	single := &ScalarMetric{Value: ScalarValue{Single: Confidence(0.4)}, Aggregation: AggregationSum}
	require.Equal(t, 0.4, single.Aggregate())
}

func TestConfusionMatrixMetric(t *testing.T) {
	matrix := ConfusionMatrix{10, 2, 30, 4}
	m := &ConfusionMatrixMetric{MetricName: "cm", Value: ConfusionMatrixValue{Single: &matrix}}
	require.NoError(t, m.Validate())

	m.MetricName = ""
	require.Error(t, m.Validate(), "a name is required")
	m.MetricName = "f1"
	require.Error(t, m.Validate(), "reserved name")

	m.MetricName = "cm"
	m.Value = ConfusionMatrixValue{PerThreshold: map[float64]ConfusionMatrix{0.5: matrix}}
	require.Error(t, m.Validate(), "confidence map needs at least two entries")
	m.Value.PerThreshold[0.75] = matrix
	require.NoError(t, m.Validate())
}
