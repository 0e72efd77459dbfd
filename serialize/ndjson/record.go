package ndjson

// Package ndjson implements the compact, one-annotation-per-line wire
// format used for bulk imports. Each line is a polymorphic record; the
// concrete type is picked by the set of determinant keys present, declared
// per record type so dispatch never needs reflection.

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/labelforge/labelforge/annotate"
)

// DataRowRef addresses the data row a record decorates.
type DataRowRef struct {
	ID        string `json:"id,omitempty"`
	GlobalKey string `json:"globalKey,omitempty"`
}

// Base is the envelope shared by every record: a batch-unique uuid, the data
// row, and the feature addressed by name or schema id.
type Base struct {
	UUID     string     `json:"uuid"`
	DataRow  DataRowRef `json:"dataRow"`
	Name     string     `json:"name,omitempty"`
	SchemaID string     `json:"schemaId,omitempty"`

	line int // 1-based source line, zero when built in memory
}

// Record is one NDJSON line.
type Record interface {
	base() *Base
}

func (b *Base) base() *Base { return b }

// Line is the 1-based source line of a parsed record, or zero.
func (b *Base) Line() int { return b.line }

// XY is a 2D vertex.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is the rectangle payload.
type BBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
}

// Answer is one selected option of a radio or checklist, possibly carrying
// nested classifications.
type Answer struct {
	Name            string     `json:"name,omitempty"`
	SchemaID        string     `json:"schemaId,omitempty"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// Subclass is a classification nested under an object or an answer. It has
// the classification payload but no envelope.
type Subclass struct {
	Name       string          `json:"name,omitempty"`
	SchemaID   string          `json:"schemaId,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
}

// TextRecord is a free-text classification. Determinant: answer as string.
type TextRecord struct {
	Base
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence,omitempty"`
	MessageID  string   `json:"messageId,omitempty"`
}

// RadioRecord selects one answer. Determinant: answer as object.
type RadioRecord struct {
	Base
	Answer    Answer `json:"answer"`
	MessageID string `json:"messageId,omitempty"`
}

// ChecklistRecord selects several answers. Determinant: answer as array, or
// the legacy answers key.
type ChecklistRecord struct {
	Base
	Answer    []Answer `json:"answer"`
	MessageID string   `json:"messageId,omitempty"`
}

// RectangleRecord. Determinant: bbox.
type RectangleRecord struct {
	Base
	BBox            BBox       `json:"bbox"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
	Page            *int       `json:"page,omitempty"`
	Unit            string     `json:"unit,omitempty"`
}

// PolygonRecord. Determinant: polygon.
type PolygonRecord struct {
	Base
	Polygon         []XY       `json:"polygon"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// LineRecord. Determinant: line.
type LineRecord struct {
	Base
	Line            []XY       `json:"line"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// PointRecord. Determinant: point.
type PointRecord struct {
	Base
	Point           XY         `json:"point"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// MaskPayload is one of three encodings: remote raster + color, inline
// base64 PNG, or COCO-style RLE.
type MaskPayload struct {
	InstanceURI string `json:"instanceURI,omitempty"`
	ColorRGB    []int  `json:"colorRGB,omitempty"`
	PNG         string `json:"png,omitempty"`
	Size        []int  `json:"size,omitempty"`
	Counts      []int  `json:"counts,omitempty"`
}

// MaskRecord. Determinant: mask.
type MaskRecord struct {
	Base
	Mask            MaskPayload `json:"mask"`
	Confidence      *float64    `json:"confidence,omitempty"`
	Classifications []Subclass  `json:"classifications,omitempty"`
}

// Location is a character span.
type Location struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EntityRecord is a named entity. Determinant: location.
type EntityRecord struct {
	Base
	Location        Location   `json:"location"`
	MessageID       string     `json:"messageId,omitempty"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// Keyframe is one explicitly-set frame of a video object.
type Keyframe struct {
	Frame           int        `json:"frame"`
	BBox            *BBox      `json:"bbox,omitempty"`
	Point           *XY        `json:"point,omitempty"`
	Line            []XY       `json:"line,omitempty"`
	Polygon         []XY       `json:"polygon,omitempty"`
	Classifications []Subclass `json:"classifications,omitempty"`
}

// Segment is a run of keyframes in ascending frame order.
type Segment struct {
	Keyframes []Keyframe `json:"keyframes"`
}

// VideoObjectRecord is one object across many frames. Determinant: segments.
type VideoObjectRecord struct {
	Base
	Segments []Segment `json:"segments"`
	GroupKey string    `json:"groupKey,omitempty"` // DICOM imaging plane
}

// RelationshipPayload references two other records of the batch by uuid.
type RelationshipPayload struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// RelationshipRecord. Determinant: relationship.
type RelationshipRecord struct {
	Base
	Relationship RelationshipPayload `json:"relationship"`
}

// MetricValue is a scalar or a per-confidence-threshold map. JSON object
// keys are the stringified thresholds.
type MetricValue struct {
	Single       *float64
	PerThreshold map[float64]float64
}

func (v MetricValue) MarshalJSON() ([]byte, error) {
	if v.Single != nil {
		return json.Marshal(*v.Single)
	}
	out := map[string]float64{}
	for threshold, value := range v.PerThreshold {
		out[strconv.FormatFloat(threshold, 'f', -1, 64)] = value
	}
	return json.Marshal(out)
}

func (v *MetricValue) UnmarshalJSON(raw []byte) error {
	var single float64
	if err := json.Unmarshal(raw, &single); err == nil {
		v.Single = &single
		return nil
	}
	keyed := map[string]float64{}
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return fmt.Errorf("metricValue is neither a number nor a confidence map")
	}
	v.PerThreshold = map[float64]float64{}
	for key, value := range keyed {
		threshold, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return fmt.Errorf("metricValue threshold %q is not a number", key)
		}
		v.PerThreshold[threshold] = value
	}
	return nil
}

// ScalarMetricRecord. Determinant: metricValue without matrix aggregation.
type ScalarMetricRecord struct {
	Base
	MetricName   string      `json:"metricName,omitempty"`
	FeatureName  string      `json:"featureName,omitempty"`
	SubclassName string      `json:"subclassName,omitempty"`
	Aggregation  string      `json:"aggregation,omitempty"`
	MetricValue  MetricValue `json:"metricValue"`
}

// MatrixValue mirrors MetricValue for confusion matrices.
type MatrixValue struct {
	Single       *annotate.ConfusionMatrix
	PerThreshold map[float64]annotate.ConfusionMatrix
}

func (v MatrixValue) MarshalJSON() ([]byte, error) {
	if v.Single != nil {
		return json.Marshal(*v.Single)
	}
	out := map[string]annotate.ConfusionMatrix{}
	for threshold, matrix := range v.PerThreshold {
		out[strconv.FormatFloat(threshold, 'f', -1, 64)] = matrix
	}
	return json.Marshal(out)
}

func (v *MatrixValue) UnmarshalJSON(raw []byte) error {
	var single annotate.ConfusionMatrix
	if err := json.Unmarshal(raw, &single); err == nil {
		v.Single = &single
		return nil
	}
	keyed := map[string]annotate.ConfusionMatrix{}
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return fmt.Errorf("metricValue is neither a matrix nor a confidence map of matrices")
	}
	v.PerThreshold = map[float64]annotate.ConfusionMatrix{}
	for key, matrix := range keyed {
		threshold, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return fmt.Errorf("metricValue threshold %q is not a number", key)
		}
		v.PerThreshold[threshold] = matrix
	}
	return nil
}

// ConfusionMatrixRecord. Determinant: metricValue with CONFUSION_MATRIX
// aggregation.
type ConfusionMatrixRecord struct {
	Base
	MetricName   string      `json:"metricName"`
	FeatureName  string      `json:"featureName,omitempty"`
	SubclassName string      `json:"subclassName,omitempty"`
	Aggregation  string      `json:"aggregation"`
	MetricValue  MatrixValue `json:"metricValue"`
}

// determinants is the full key set the dispatcher understands, in the order
// it is reported to the user on a failed dispatch.
var determinants = []string{
	"answer", "answers", "bbox", "polygon", "line", "point", "mask",
	"location", "segments", "relationship", "metricValue",
}

// UnknownRecordError reports a line with no matching record type.
type UnknownRecordError struct {
	Line int
	Keys []string // keys present on the line
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("line %v: no record type matches keys %v; expected one of %v", e.Line, e.Keys, determinants)
}

// ParseRecord dispatches one line to its concrete type. line is 1-based and
// used only for error reporting.
func ParseRecord(raw []byte, line int) (Record, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &annotate.ValidationError{Line: line, Message: fmt.Sprintf("invalid json: %v", err)}
	}

	decode := func(record Record) (Record, error) {
		if err := json.Unmarshal(raw, record); err != nil {
			return nil, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		record.base().line = line
		return record, nil
	}

	switch {
	case fields["relationship"] != nil:
		return decode(&RelationshipRecord{})
	case fields["segments"] != nil:
		return decode(&VideoObjectRecord{})
	case fields["bbox"] != nil:
		return decode(&RectangleRecord{})
	case fields["polygon"] != nil:
		return decode(&PolygonRecord{})
	case fields["line"] != nil:
		return decode(&LineRecord{})
	case fields["point"] != nil:
		return decode(&PointRecord{})
	case fields["mask"] != nil:
		return decode(&MaskRecord{})
	case fields["location"] != nil:
		return decode(&EntityRecord{})
	case fields["metricValue"] != nil:
		var agg struct {
			Aggregation string `json:"aggregation"`
		}
		if err := json.Unmarshal(raw, &agg); err == nil && agg.Aggregation == string(annotate.AggregationConfusionMatrix) {
			return decode(&ConfusionMatrixRecord{})
		}
		return decode(&ScalarMetricRecord{})
	case fields["answers"] != nil:
		// Legacy alias for a checklist's answer array
		var list struct {
			Answers []Answer `json:"answers"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		record := &ChecklistRecord{Answer: list.Answers}
		if err := json.Unmarshal(raw, &record.Base); err != nil {
			return nil, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		record.line = line
		return record, nil
	case fields["answer"] != nil:
		return dispatchAnswer(raw, fields["answer"], line)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, &UnknownRecordError{Line: line, Keys: keys}
}

// dispatchAnswer breaks the Text/Radio/Checklist tie on answer-value shape.
func dispatchAnswer(raw, answer json.RawMessage, line int) (Record, error) {
	decode := func(record Record) (Record, error) {
		if err := json.Unmarshal(raw, record); err != nil {
			return nil, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		record.base().line = line
		return record, nil
	}
	switch answer[0] {
	case '"':
		return decode(&TextRecord{})
	case '[':
		return decode(&ChecklistRecord{})
	case '{':
		return decode(&RadioRecord{})
	default:
		return nil, &annotate.ValidationError{Line: line, Message: "answer must be a string, an object or an array"}
	}
}
