package ndjson

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/labelforge/labelforge/pkg/geom"
	"github.com/labelforge/labelforge/pkg/rle"
)

// rleColor is the color painted for pixels selected by an RLE-encoded mask.
var rleColor = geom.Color{R: 255, G: 255, B: 255}

// Deserialize groups records by data row and rebuilds the annotation graph.
// Record uuids are kept on the annotations and mirrored under extra["uuid"],
// so serializing again is exact. Relationship records must reference object
// uuids of the same data row.
func Deserialize(records []Record) ([]*annotate.Label, error) {
	labels := []*annotate.Label{}
	byRow := map[DataRowRef]*annotate.Label{}
	objects := map[string]*annotate.ObjectAnnotation{}
	relationships := []*RelationshipRecord{}
	relLabels := []*annotate.Label{}

	labelFor := func(row DataRowRef) (*annotate.Label, error) {
		if label, ok := byRow[row]; ok {
			return label, nil
		}
		data, err := mediadata.NewGenericData(mediadata.Options{UID: row.ID, GlobalKey: row.GlobalKey})
		if err != nil {
			return nil, annotate.Validationf("record needs a data row id or global key")
		}
		label := &annotate.Label{Data: data}
		byRow[row] = label
		labels = append(labels, label)
		return label, nil
	}

	for _, record := range records {
		label, err := labelFor(record.base().DataRow)
		if err != nil {
			return nil, err
		}
		if rel, ok := record.(*RelationshipRecord); ok {
			// Endpoints may appear later in the stream
			relationships = append(relationships, rel)
			relLabels = append(relLabels, label)
			continue
		}
		annotations, err := deserializeRecord(record)
		if err != nil {
			return nil, err
		}
		for _, a := range annotations {
			if obj, ok := a.(*annotate.ObjectAnnotation); ok {
				objects[obj.UUID] = obj
			}
			label.Annotations = append(label.Annotations, a)
		}
	}

	for i, rel := range relationships {
		source, ok := objects[rel.Relationship.Source]
		if !ok {
			return nil, &annotate.ValidationError{Line: rel.line, Message: "relationship source " + rel.Relationship.Source + " is not in the batch"}
		}
		target, ok := objects[rel.Relationship.Target]
		if !ok {
			return nil, &annotate.ValidationError{Line: rel.line, Message: "relationship target " + rel.Relationship.Target + " is not in the batch"}
		}
		relLabels[i].Annotations = append(relLabels[i].Annotations, &annotate.RelationshipAnnotation{
			FeatureSchema: annotate.FeatureSchema{Name: rel.Name, FeatureSchemaID: rel.SchemaID},
			UUID:          rel.UUID,
			Source:        source,
			Target:        target,
			Type:          annotate.RelationshipType(strings.ToUpper(rel.Relationship.Type)),
			Extra:         map[string]any{"uuid": rel.UUID},
		})
	}
	return labels, nil
}

func deserializeRecord(record Record) ([]annotate.Annotation, error) {
	switch r := record.(type) {
	case *TextRecord:
		a := classificationShell(r.Base, annotate.Text{Answer: r.Answer, Confidence: r.Confidence})
		a.MessageID = r.MessageID
		return []annotate.Annotation{a}, nil
	case *RadioRecord:
		answer, err := deserializeAnswer(r.Answer, r.line)
		if err != nil {
			return nil, err
		}
		a := classificationShell(r.Base, annotate.Radio{Answer: answer})
		a.MessageID = r.MessageID
		return []annotate.Annotation{a}, nil
	case *ChecklistRecord:
		if len(r.Answer) == 0 {
			return nil, &annotate.ValidationError{Line: r.line, Message: "a checklist needs at least one answer"}
		}
		answers := make([]annotate.ClassificationAnswer, 0, len(r.Answer))
		for _, in := range r.Answer {
			answer, err := deserializeAnswer(in, r.line)
			if err != nil {
				return nil, err
			}
			answers = append(answers, answer)
		}
		a := classificationShell(r.Base, annotate.Checklist{Answers: answers})
		a.MessageID = r.MessageID
		return []annotate.Annotation{a}, nil
	case *PointRecord:
		return objectShell(r.Base, geom.Point{X: r.Point.X, Y: r.Point.Y}, r.Confidence, r.Classifications)
	case *LineRecord:
		line, err := geom.NewLine(fromXY(r.Line))
		if err != nil {
			return nil, &annotate.ValidationError{Line: r.line, Message: err.Error()}
		}
		return objectShell(r.Base, line, r.Confidence, r.Classifications)
	case *RectangleRecord:
		rect := geom.RectangleFromXYHW(r.BBox.Left, r.BBox.Top, r.BBox.Height, r.BBox.Width)
		return objectShell(r.Base, rect, r.Confidence, r.Classifications)
	case *PolygonRecord:
		polygon, err := geom.NewPolygon(fromXY(r.Polygon))
		if err != nil {
			return nil, &annotate.ValidationError{Line: r.line, Message: err.Error()}
		}
		return objectShell(r.Base, polygon, r.Confidence, r.Classifications)
	case *MaskRecord:
		value, err := deserializeMask(r)
		if err != nil {
			return nil, err
		}
		return objectShell(r.Base, value, r.Confidence, r.Classifications)
	case *EntityRecord:
		entity := annotate.TextEntity{Start: r.Location.Start, End: r.Location.End, MessageID: r.MessageID}
		return objectShell(r.Base, entity, r.Confidence, r.Classifications)
	case *VideoObjectRecord:
		return deserializeVideoObject(r)
	case *ScalarMetricRecord:
		return []annotate.Annotation{&annotate.ScalarMetric{
			MetricName:   r.MetricName,
			FeatureName:  r.FeatureName,
			SubclassName: r.SubclassName,
			Aggregation:  annotate.Aggregation(r.Aggregation),
			Value:        annotate.ScalarValue{Single: r.MetricValue.Single, PerThreshold: r.MetricValue.PerThreshold},
			Extra:        map[string]any{"uuid": r.UUID},
		}}, nil
	case *ConfusionMatrixRecord:
		return []annotate.Annotation{&annotate.ConfusionMatrixMetric{
			MetricName:   r.MetricName,
			FeatureName:  r.FeatureName,
			SubclassName: r.SubclassName,
			Value:        annotate.ConfusionMatrixValue{Single: r.MetricValue.Single, PerThreshold: r.MetricValue.PerThreshold},
			Extra:        map[string]any{"uuid": r.UUID},
		}}, nil
	default:
		return nil, annotate.Validationf("record type %T cannot be deserialized", record)
	}
}

func classificationShell(base Base, value annotate.ClassificationValue) *annotate.ClassificationAnnotation {
	return &annotate.ClassificationAnnotation{
		FeatureSchema: annotate.FeatureSchema{Name: base.Name, FeatureSchemaID: base.SchemaID},
		UUID:          base.UUID,
		Value:         value,
		Extra:         map[string]any{"uuid": base.UUID},
	}
}

func objectShell(base Base, value annotate.ObjectValue, confidence *float64, subclasses []Subclass) ([]annotate.Annotation, error) {
	classifications, err := deserializeSubclasses(subclasses, base.line)
	if err != nil {
		return nil, err
	}
	return []annotate.Annotation{&annotate.ObjectAnnotation{
		FeatureSchema:   annotate.FeatureSchema{Name: base.Name, FeatureSchemaID: base.SchemaID},
		UUID:            base.UUID,
		Value:           value,
		Confidence:      confidence,
		Classifications: classifications,
		Extra:           map[string]any{"uuid": base.UUID},
	}}, nil
}

func deserializeAnswer(in Answer, line int) (annotate.ClassificationAnswer, error) {
	classifications, err := deserializeSubclasses(in.Classifications, line)
	if err != nil {
		return annotate.ClassificationAnswer{}, err
	}
	return annotate.ClassificationAnswer{
		FeatureSchema:   annotate.FeatureSchema{Name: in.Name, FeatureSchemaID: in.SchemaID},
		Confidence:      in.Confidence,
		Classifications: classifications,
	}, nil
}

func deserializeSubclasses(list []Subclass, line int) ([]annotate.ClassificationAnnotation, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]annotate.ClassificationAnnotation, 0, len(list))
	for _, sub := range list {
		a, err := deserializeSubclass(sub, line)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// deserializeSubclass dispatches the nested answer on its JSON shape, the
// same tie-break the top-level dispatcher uses.
func deserializeSubclass(sub Subclass, line int) (annotate.ClassificationAnnotation, error) {
	a := annotate.ClassificationAnnotation{
		FeatureSchema: annotate.FeatureSchema{Name: sub.Name, FeatureSchemaID: sub.SchemaID},
		Confidence:    sub.Confidence,
		MessageID:     sub.MessageID,
	}
	if len(sub.Answer) == 0 {
		return a, &annotate.ValidationError{Line: line, Message: "nested classification has no answer"}
	}
	switch sub.Answer[0] {
	case '"':
		var text string
		if err := json.Unmarshal(sub.Answer, &text); err != nil {
			return a, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		a.Value = annotate.Text{Answer: text}
	case '{':
		var wire Answer
		if err := json.Unmarshal(sub.Answer, &wire); err != nil {
			return a, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		answer, err := deserializeAnswer(wire, line)
		if err != nil {
			return a, err
		}
		a.Value = annotate.Radio{Answer: answer}
	case '[':
		var wires []Answer
		if err := json.Unmarshal(sub.Answer, &wires); err != nil {
			return a, &annotate.ValidationError{Line: line, Message: err.Error()}
		}
		answers := make([]annotate.ClassificationAnswer, 0, len(wires))
		for _, wire := range wires {
			answer, err := deserializeAnswer(wire, line)
			if err != nil {
				return a, err
			}
			answers = append(answers, answer)
		}
		a.Value = annotate.Checklist{Answers: answers}
	default:
		return a, &annotate.ValidationError{Line: line, Message: "nested answer must be a string, an object or an array"}
	}
	return a, nil
}

func deserializeMask(r *MaskRecord) (*annotate.MaskValue, error) {
	payload := r.Mask
	switch {
	case payload.InstanceURI != "":
		color, err := colorFromRGB(payload.ColorRGB, r.line)
		if err != nil {
			return nil, err
		}
		return &annotate.MaskValue{Mask: mediadata.NewMaskDataFromURL(payload.InstanceURI, nil), Color: color}, nil
	case payload.PNG != "":
		raw, err := base64.StdEncoding.DecodeString(payload.PNG)
		if err != nil {
			return nil, &annotate.ValidationError{Line: r.line, Message: "mask png is not valid base64: " + err.Error()}
		}
		data, err := mediadata.NewMaskData(mediadata.RasterOptions{Options: mediadata.Options{Bytes: raw}})
		if err != nil {
			return nil, &annotate.ValidationError{Line: r.line, Message: err.Error()}
		}
		return &annotate.MaskValue{Mask: data, Color: rleColor}, nil
	case len(payload.Counts) > 0 || len(payload.Size) > 0:
		if len(payload.Size) != 2 || payload.Size[0] <= 0 || payload.Size[1] <= 0 {
			return nil, &annotate.ValidationError{Line: r.line, Message: "mask size must be two positive integers"}
		}
		selected, err := rle.Decode(payload.Counts, payload.Size[0], payload.Size[1])
		if err != nil {
			return nil, &annotate.ValidationError{Line: r.line, Message: err.Error()}
		}
		raster := boolsToRaster(selected, payload.Size[1], payload.Size[0])
		return &annotate.MaskValue{Mask: mediadata.NewMaskDataFromRaster(raster), Color: rleColor}, nil
	default:
		return nil, &annotate.ValidationError{Line: r.line, Message: "mask needs one of instanceURI, png or counts"}
	}
}

func colorFromRGB(rgb []int, line int) (geom.Color, error) {
	if len(rgb) != 3 {
		return geom.Color{}, &annotate.ValidationError{Line: line, Message: "colorRGB must have three components"}
	}
	for _, c := range rgb {
		if c < 0 || c > 255 {
			return geom.Color{}, &annotate.ValidationError{Line: line, Message: "colorRGB components must be in [0, 255]"}
		}
	}
	return geom.MakeColor(rgb[0], rgb[1], rgb[2])
}

func boolsToRaster(selected []bool, width, height int) *cimg.Image {
	im := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := y * im.Stride
		for x := 0; x < width; x++ {
			if selected[y*width+x] {
				im.Pixels[row+x*3] = rleColor.R
				im.Pixels[row+x*3+1] = rleColor.G
				im.Pixels[row+x*3+2] = rleColor.B
			}
		}
	}
	return im
}

// deserializeVideoObject explodes segments back into one annotation per
// keyframe. Segment indices are positional.
func deserializeVideoObject(r *VideoObjectRecord) ([]annotate.Annotation, error) {
	out := []annotate.Annotation{}
	for index, segment := range r.Segments {
		index := index
		for _, keyframe := range segment.Keyframes {
			value, err := keyframeValue(keyframe, r.line)
			if err != nil {
				return nil, err
			}
			classifications, err := deserializeSubclasses(keyframe.Classifications, r.line)
			if err != nil {
				return nil, err
			}
			video := annotate.VideoObjectAnnotation{
				ObjectAnnotation: annotate.ObjectAnnotation{
					FeatureSchema:   annotate.FeatureSchema{Name: r.Name, FeatureSchemaID: r.SchemaID},
					UUID:            r.UUID,
					Value:           value,
					Classifications: classifications,
					Extra:           map[string]any{"uuid": r.UUID},
				},
				Frame:        keyframe.Frame,
				Keyframe:     true,
				SegmentIndex: &index,
			}
			if r.GroupKey != "" {
				out = append(out, &annotate.DICOMObjectAnnotation{
					VideoObjectAnnotation: video,
					GroupKey:              annotate.GroupKey(r.GroupKey),
				})
			} else {
				out = append(out, &video)
			}
		}
	}
	if len(out) == 0 {
		return nil, &annotate.ValidationError{Line: r.line, Message: "a video object needs at least one keyframe"}
	}
	return out, nil
}

func keyframeValue(keyframe Keyframe, line int) (annotate.ObjectValue, error) {
	switch {
	case keyframe.BBox != nil:
		return geom.RectangleFromXYHW(keyframe.BBox.Left, keyframe.BBox.Top, keyframe.BBox.Height, keyframe.BBox.Width), nil
	case keyframe.Point != nil:
		return geom.Point{X: keyframe.Point.X, Y: keyframe.Point.Y}, nil
	case len(keyframe.Line) > 0:
		line, err := geom.NewLine(fromXY(keyframe.Line))
		if err != nil {
			return nil, err
		}
		return line, nil
	case len(keyframe.Polygon) > 0:
		polygon, err := geom.NewPolygon(fromXY(keyframe.Polygon))
		if err != nil {
			return nil, err
		}
		return polygon, nil
	default:
		return nil, &annotate.ValidationError{Line: line, Message: "keyframe needs one of bbox, point, line or polygon"}
	}
}

func fromXY(list []XY) []geom.Point {
	out := make([]geom.Point, 0, len(list))
	for _, p := range list {
		out = append(out, geom.Point{X: p.X, Y: p.Y})
	}
	return out
}
