package labelv1

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/labelforge/labelforge/pkg/geom"
)

// Serialize converts labels back into verbose records, the inverse of
// Deserialize. Envelope fields preserved in the label's Extra are restored,
// video annotations are regrouped by frame, and the signer is consulted when
// a data row has no public URL yet.
func (c *Converter) Serialize(ctx context.Context, labels annotate.LabelList) ([]*Record, error) {
	records := make([]*Record, 0, len(labels))
	for _, label := range labels {
		record, err := c.serializeLabel(ctx, label)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *Converter) serializeLabel(ctx context.Context, label *annotate.Label) (*Record, error) {
	if err := label.Validate(); err != nil {
		return nil, err
	}
	record := &Record{ID: label.UID}
	restoreEnvelope(record, label.Extra)

	if err := c.serializeRowData(ctx, label, record); err != nil {
		return nil, err
	}

	payload, err := c.labelField(ctx, label)
	if err != nil {
		return nil, err
	}
	record.Label = payload
	return record, nil
}

func (c *Converter) serializeRowData(ctx context.Context, label *annotate.Label, record *Record) error {
	data := label.Data
	ref := data.Reference()
	record.DataRowID = ref.UID
	record.ExternalID = ref.ExternalID
	record.GlobalKey = ref.GlobalKey
	if record.MediaType == "" {
		record.MediaType = mediaTypeOf(data.Kind())
	}

	if data.URL() == "" {
		if text, ok := data.(*mediadata.TextData); ok {
			value, err := text.Value(ctx)
			if err != nil {
				return err
			}
			record.RowData = value
			return nil
		}
		if c.Signer != nil {
			if err := label.AddURLToData(ctx, c.Signer); err != nil {
				return err
			}
		} else if ref.UID == "" && ref.GlobalKey == "" {
			// A reference-only row is fine without content; an anonymous
			// row with no content is unrepresentable.
			return fmt.Errorf("data row %q has no URL and no signer is configured", label.UID)
		}
	}
	record.RowData = data.URL()
	return nil
}

func mediaTypeOf(kind mediadata.Kind) string {
	switch kind {
	case mediadata.KindImage:
		return "image"
	case mediadata.KindText:
		return "text"
	case mediadata.KindVideo:
		return "video"
	}
	return ""
}

// labelField builds the Label payload: per-frame records for video labels,
// otherwise a single objects/classifications object.
func (c *Converter) labelField(ctx context.Context, label *annotate.Label) (json.RawMessage, error) {
	if isVideo(label) {
		frames, err := c.frameRecords(ctx, label)
		if err != nil {
			return nil, err
		}
		return json.Marshal(frames)
	}

	payload := LabelPayload{Objects: []Object{}, Classifications: []Classification{}}
	for _, annotation := range label.Annotations {
		switch a := annotation.(type) {
		case *annotate.ObjectAnnotation:
			object, err := c.serializeObject(ctx, label, a)
			if err != nil {
				return nil, err
			}
			payload.Objects = append(payload.Objects, object)
		case *annotate.ClassificationAnnotation:
			payload.Classifications = append(payload.Classifications, serializeClassification(a))
		default:
			return nil, fmt.Errorf("annotation type %T is not supported by the verbose format", annotation)
		}
	}
	return json.Marshal(payload)
}

func isVideo(label *annotate.Label) bool {
	if label.Data != nil && label.Data.Kind() == mediadata.KindVideo {
		return true
	}
	for _, annotation := range label.Annotations {
		switch annotation.(type) {
		case *annotate.VideoObjectAnnotation, *annotate.VideoClassificationAnnotation:
			return true
		}
	}
	return false
}

// frameRecords regroups frame-indexed annotations into one record per frame,
// in ascending frame order.
func (c *Converter) frameRecords(ctx context.Context, label *annotate.Label) ([]FramePayload, error) {
	byFrame := map[int]*FramePayload{}
	frameOf := func(n int) *FramePayload {
		if frame, ok := byFrame[n]; ok {
			return frame
		}
		frame := &FramePayload{FrameNumber: n, Objects: []Object{}, Classifications: []Classification{}}
		byFrame[n] = frame
		return frame
	}

	for _, annotation := range label.Annotations {
		switch a := annotation.(type) {
		case *annotate.VideoObjectAnnotation:
			object, err := c.serializeObject(ctx, label, &a.ObjectAnnotation)
			if err != nil {
				return nil, err
			}
			object.Keyframe = a.Keyframe
			frame := frameOf(a.Frame)
			frame.Objects = append(frame.Objects, object)
		case *annotate.VideoClassificationAnnotation:
			frame := frameOf(a.Frame)
			frame.Classifications = append(frame.Classifications, serializeClassification(&a.ClassificationAnnotation))
		default:
			return nil, fmt.Errorf("annotation type %T is not supported in a video label", annotation)
		}
	}

	numbers := make([]int, 0, len(byFrame))
	for n := range byFrame {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	frames := make([]FramePayload, 0, len(numbers))
	for _, n := range numbers {
		frames = append(frames, *byFrame[n])
	}
	return frames, nil
}

func (c *Converter) serializeObject(ctx context.Context, label *annotate.Label, annotation *annotate.ObjectAnnotation) (Object, error) {
	object := Object{
		FeatureID: stringExtra(annotation.Extra, "featureId", annotation.UUID),
		SchemaID:  annotation.FeatureSchemaID,
		Title:     annotation.Name,
		Value:     stringExtra(annotation.Extra, "value", ""),
		Color:     stringExtra(annotation.Extra, "color", ""),
	}

	switch value := annotation.Value.(type) {
	case geom.Rectangle:
		object.BBox = &BBox{
			Top:    value.Start.Y,
			Left:   value.Start.X,
			Height: value.Height(),
			Width:  value.Width(),
		}
	case *geom.Polygon:
		object.Polygon = toXY(value.Points)
	case *geom.Line:
		object.Line = toXY(value.Points)
	case geom.Point:
		object.Point = &XY{X: value.X, Y: value.Y}
	case *annotate.MaskValue:
		if value.Mask.URL() == "" {
			if c.Signer == nil {
				return Object{}, fmt.Errorf("mask %q has no URL and no signer is configured", annotation.Identifier())
			}
			if err := label.AddURLToMasks(ctx, c.Signer); err != nil {
				return Object{}, err
			}
		}
		object.InstanceURI = value.Mask.URL()
		if object.Color == "" {
			triple := value.Color.Triple()
			object.Color = fmt.Sprintf("#%02x%02x%02x", triple[0], triple[1], triple[2])
		}
	case annotate.TextEntity:
		object.Data = &EntityLocation{Location: Span{Start: value.Start, End: value.End}}
	default:
		return Object{}, fmt.Errorf("object value %T is not supported by the verbose format", annotation.Value)
	}

	for i := range annotation.Classifications {
		object.Classifications = append(object.Classifications, serializeClassification(&annotation.Classifications[i]))
	}
	return object, nil
}

func toXY(points []geom.Point) []XY {
	out := make([]XY, len(points))
	for i, p := range points {
		out[i] = XY{X: p.X, Y: p.Y}
	}
	return out
}

func serializeClassification(annotation *annotate.ClassificationAnnotation) Classification {
	classification := Classification{
		FeatureID: stringExtra(annotation.Extra, "featureId", ""),
		SchemaID:  annotation.FeatureSchemaID,
		Title:     annotation.Name,
		Value:     stringExtra(annotation.Extra, "value", ""),
	}
	switch value := annotation.Value.(type) {
	case annotate.Text:
		classification.Answer, _ = json.Marshal(value.Answer)
	case annotate.Prompt:
		classification.Answer, _ = json.Marshal(value.Answer)
	case annotate.Radio:
		classification.Answer, _ = json.Marshal(serializeAnswer(&value.Answer))
	case annotate.Checklist:
		classification.Answers = serializeAnswers(value.Answers)
	case annotate.Dropdown:
		classification.Answer, _ = json.Marshal(serializeAnswers(value.Answers))
	}
	return classification
}

func serializeAnswers(answers []annotate.ClassificationAnswer) []AnswerPayload {
	out := make([]AnswerPayload, len(answers))
	for i := range answers {
		out[i] = serializeAnswer(&answers[i])
	}
	return out
}

func serializeAnswer(answer *annotate.ClassificationAnswer) AnswerPayload {
	payload := AnswerPayload{
		FeatureID: stringExtra(answer.Extra, "featureId", ""),
		SchemaID:  answer.FeatureSchemaID,
		Title:     answer.Name,
		Value:     stringExtra(answer.Extra, "value", ""),
	}
	for i := range answer.Classifications {
		payload.Classifications = append(payload.Classifications, serializeClassification(&answer.Classifications[i]))
	}
	return payload
}

func stringExtra(extra map[string]any, key, fallback string) string {
	if extra != nil {
		if s, ok := extra[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// restoreEnvelope writes the preserved envelope fields back onto the record.
func restoreEnvelope(record *Record, extra map[string]any) {
	if extra == nil {
		return
	}
	if s, ok := extra["Created By"].(string); ok {
		record.CreatedBy = s
	}
	if s, ok := extra["Project Name"].(string); ok {
		record.ProjectName = s
	}
	if s, ok := extra["Dataset Name"].(string); ok {
		record.DatasetName = s
	}
	if s, ok := extra["Created At"].(string); ok {
		record.CreatedAt = s
	}
	if s, ok := extra["Updated At"].(string); ok {
		record.UpdatedAt = s
	}
	if f, ok := extra["Seconds to Label"].(float64); ok {
		record.SecondsToLabel = f
	}
	if f, ok := extra["Agreement"].(float64); ok {
		agreement := f
		record.Agreement = &agreement
	}
	if s, ok := extra["Benchmark ID"].(string); ok {
		record.BenchmarkID = s
	}
	if raw, ok := extra["Reviews"].(json.RawMessage); ok {
		record.Reviews = raw
	}
	if b, ok := extra["Skipped"].(bool); ok {
		record.Skipped = b
	}
	if f, ok := extra["Has Open Issues"].(float64); ok {
		issues := f
		record.HasOpenIssues = &issues
	}
	if s, ok := extra["Data Split"].(string); ok {
		record.DataSplit = s
	}
	if s, ok := extra["media_type"].(string); ok {
		record.MediaType = s
	}
	for key, value := range extra {
		if envelopeKeys[key] {
			continue
		}
		raw, ok := value.(json.RawMessage)
		if !ok {
			var err error
			if raw, err = json.Marshal(value); err != nil {
				continue
			}
		}
		if record.Extra == nil {
			record.Extra = map[string]json.RawMessage{}
		}
		record.Extra[key] = raw
	}
}
