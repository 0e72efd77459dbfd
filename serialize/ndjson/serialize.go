package ndjson

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/pkg/geom"
)

// ErrDropdownNotSupported is returned when a legacy dropdown classification
// reaches the compact format.
var ErrDropdownNotSupported = errors.New("Dropdowns are not supported for MAL")

// Serialize flattens a batch of labels into NDJSON records, one per
// annotation. Relationship endpoints that would collide with a uuid already
// emitted in this batch are renamed first; the endpoints' private uuids are
// mutated in place so the emitted relationship stays consistent. Confidence
// on video object annotations is dropped with a logged warning.
func Serialize(ctx context.Context, logger logs.Log, labels []*annotate.Label) ([]Record, error) {
	out := []Record{}
	seen := map[string]bool{}
	for _, label := range labels {
		records, err := serializeLabel(ctx, logger, label, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func serializeLabel(ctx context.Context, logger logs.Log, label *annotate.Label, seen map[string]bool) ([]Record, error) {
	dataRow, err := dataRowRef(label)
	if err != nil {
		return nil, err
	}
	ensureUUIDs(label)
	rewriteCollidingUUIDs(label, seen)

	out := []Record{}
	videos := map[string][]*annotate.VideoObjectAnnotation{}
	videoOrder := []string{}
	groupKeys := map[string]string{}

	for _, a := range label.Annotations {
		switch a := a.(type) {
		case *annotate.ObjectAnnotation:
			record, err := serializeObject(ctx, a, dataRow)
			if err != nil {
				return nil, err
			}
			out = append(out, record)
		case *annotate.VideoObjectAnnotation:
			if a.Confidence != nil && logger != nil {
				logger.Warnf("Dropping confidence on video object %q: video objects carry keyframe semantics instead", a.Identifier())
			}
			key := a.Identifier()
			if _, ok := videos[key]; !ok {
				videoOrder = append(videoOrder, key)
			}
			videos[key] = append(videos[key], a)
		case *annotate.DICOMObjectAnnotation:
			key := a.Identifier()
			if _, ok := videos[key]; !ok {
				videoOrder = append(videoOrder, key)
			}
			videos[key] = append(videos[key], &a.VideoObjectAnnotation)
			groupKeys[key] = string(a.GroupKey)
		case *annotate.ClassificationAnnotation:
			record, err := serializeClassification(a, dataRow)
			if err != nil {
				return nil, err
			}
			out = append(out, record)
		case *annotate.VideoClassificationAnnotation:
			record, err := serializeClassification(&a.ClassificationAnnotation, dataRow)
			if err != nil {
				return nil, err
			}
			out = append(out, record)
		case *annotate.RelationshipAnnotation:
			out = append(out, &RelationshipRecord{
				Base: Base{UUID: a.UUID, DataRow: dataRow, Name: a.Name, SchemaID: a.FeatureSchemaID},
				Relationship: RelationshipPayload{
					Source: a.Source.UUID,
					Target: a.Target.UUID,
					Type:   strings.ToLower(string(a.Type)),
				},
			})
		case *annotate.ScalarMetric:
			out = append(out, &ScalarMetricRecord{
				Base:         Base{UUID: uuid.NewString(), DataRow: dataRow},
				MetricName:   a.MetricName,
				FeatureName:  a.FeatureName,
				SubclassName: a.SubclassName,
				Aggregation:  string(a.Aggregation),
				MetricValue:  MetricValue{Single: a.Value.Single, PerThreshold: a.Value.PerThreshold},
			})
		case *annotate.ConfusionMatrixMetric:
			out = append(out, &ConfusionMatrixRecord{
				Base:         Base{UUID: uuid.NewString(), DataRow: dataRow},
				MetricName:   a.MetricName,
				FeatureName:  a.FeatureName,
				SubclassName: a.SubclassName,
				Aggregation:  string(annotate.AggregationConfusionMatrix),
				MetricValue:  MatrixValue{Single: a.Value.Single, PerThreshold: a.Value.PerThreshold},
			})
		case *annotate.MaskFrame, *annotate.MaskInstance:
			return nil, annotate.Validationf("video masks are not supported in the compact format")
		}
	}

	for _, key := range videoOrder {
		record, err := serializeVideoGroup(videos[key], dataRow, groupKeys[key])
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}

	for _, record := range out {
		seen[record.base().UUID] = true
	}
	return out, nil
}

func dataRowRef(label *annotate.Label) (DataRowRef, error) {
	if label.Data == nil {
		return DataRowRef{}, annotate.Validationf("a label needs data to serialize")
	}
	ref := label.Data.Reference()
	switch {
	case ref.UID != "":
		return DataRowRef{ID: ref.UID}, nil
	case ref.GlobalKey != "":
		return DataRowRef{GlobalKey: ref.GlobalKey}, nil
	default:
		return DataRowRef{}, annotate.Validationf("label data needs a data row id or global key")
	}
}

func ensureUUIDs(label *annotate.Label) {
	for _, a := range label.Annotations {
		switch a := a.(type) {
		case *annotate.ObjectAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		case *annotate.VideoObjectAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		case *annotate.DICOMObjectAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		case *annotate.ClassificationAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		case *annotate.VideoClassificationAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		case *annotate.RelationshipAnnotation:
			if a.UUID == "" {
				a.UUID = uuid.NewString()
			}
		}
	}
}

// rewriteCollidingUUIDs renames envelope uuids that were already emitted
// earlier in the batch. Both endpoints of an affected relationship get fresh
// uuids, recorded in a per-label table so annotations sharing a renamed uuid
// by value stay consistent with the pointer-held endpoints.
func rewriteCollidingUUIDs(label *annotate.Label, seen map[string]bool) {
	table := map[string]string{}
	renamed := map[*annotate.ObjectAnnotation]bool{}
	rename := func(o *annotate.ObjectAnnotation) {
		if renamed[o] {
			return
		}
		fresh := uuid.NewString()
		table[o.UUID] = fresh
		o.UUID = fresh
		renamed[o] = true
	}
	for _, a := range label.Annotations {
		rel, ok := a.(*annotate.RelationshipAnnotation)
		if !ok || rel.Source == nil || rel.Target == nil {
			continue
		}
		if !seen[rel.Source.UUID] && !seen[rel.Target.UUID] {
			continue
		}
		rename(rel.Source)
		rename(rel.Target)
	}
	follow := func(o *annotate.ObjectAnnotation) {
		if renamed[o] {
			return
		}
		if fresh, ok := table[o.UUID]; ok {
			o.UUID = fresh
			renamed[o] = true
		} else if seen[o.UUID] {
			rename(o)
		}
	}
	for _, a := range label.Annotations {
		switch a := a.(type) {
		case *annotate.ObjectAnnotation:
			follow(a)
		case *annotate.VideoObjectAnnotation:
			follow(&a.ObjectAnnotation)
		case *annotate.DICOMObjectAnnotation:
			follow(&a.ObjectAnnotation)
		case *annotate.ClassificationAnnotation:
			if seen[a.UUID] {
				a.UUID = uuid.NewString()
			}
		case *annotate.VideoClassificationAnnotation:
			if seen[a.UUID] {
				a.UUID = uuid.NewString()
			}
		case *annotate.RelationshipAnnotation:
			if seen[a.UUID] {
				a.UUID = uuid.NewString()
			}
		}
	}
}

func serializeObject(ctx context.Context, a *annotate.ObjectAnnotation, dataRow DataRowRef) (Record, error) {
	base := Base{UUID: a.UUID, DataRow: dataRow, Name: a.Name, SchemaID: a.FeatureSchemaID}
	subclasses, err := serializeSubclasses(a.Classifications)
	if err != nil {
		return nil, err
	}
	switch value := a.Value.(type) {
	case geom.Point:
		return &PointRecord{Base: base, Point: XY{X: value.X, Y: value.Y}, Confidence: a.Confidence, Classifications: subclasses}, nil
	case *geom.Line:
		return &LineRecord{Base: base, Line: toXY(value.Points), Confidence: a.Confidence, Classifications: subclasses}, nil
	case geom.Rectangle:
		bbox := BBox{Top: value.Start.Y, Left: value.Start.X, Height: value.Height(), Width: value.Width()}
		return &RectangleRecord{Base: base, BBox: bbox, Confidence: a.Confidence, Classifications: subclasses}, nil
	case *geom.Polygon:
		return &PolygonRecord{Base: base, Polygon: toXY(value.Points), Confidence: a.Confidence, Classifications: subclasses}, nil
	case *annotate.MaskValue:
		payload, err := maskPayload(ctx, value)
		if err != nil {
			return nil, err
		}
		return &MaskRecord{Base: base, Mask: payload, Confidence: a.Confidence, Classifications: subclasses}, nil
	case annotate.TextEntity:
		return &EntityRecord{
			Base:            base,
			Location:        Location{Start: value.Start, End: value.End},
			MessageID:       value.MessageID,
			Confidence:      a.Confidence,
			Classifications: subclasses,
		}, nil
	case annotate.ConversationEntity:
		return &EntityRecord{
			Base:            base,
			Location:        Location{Start: value.Start, End: value.End},
			MessageID:       value.MessageID,
			Confidence:      a.Confidence,
			Classifications: subclasses,
		}, nil
	default:
		return nil, annotate.Validationf("object value %T is not supported in the compact format", a.Value)
	}
}

// maskPayload prefers the remote-raster encoding when the mask already has a
// URL, else falls back to inline PNG. RLE is accepted on import only.
func maskPayload(ctx context.Context, value *annotate.MaskValue) (MaskPayload, error) {
	color := []int{int(value.Color.R), int(value.Color.G), int(value.Color.B)}
	if value.Mask == nil {
		return MaskPayload{}, annotate.Validationf("a mask value needs mask data")
	}
	if url := value.Mask.URL(); url != "" {
		return MaskPayload{InstanceURI: url, ColorRGB: color}, nil
	}
	png, err := value.Mask.PNG(ctx)
	if err != nil {
		return MaskPayload{}, err
	}
	return MaskPayload{PNG: base64.StdEncoding.EncodeToString(png)}, nil
}

func serializeClassification(a *annotate.ClassificationAnnotation, dataRow DataRowRef) (Record, error) {
	base := Base{UUID: a.UUID, DataRow: dataRow, Name: a.Name, SchemaID: a.FeatureSchemaID}
	switch value := a.Value.(type) {
	case annotate.Text:
		confidence := a.Confidence
		if confidence == nil {
			confidence = value.Confidence
		}
		return &TextRecord{Base: base, Answer: value.Answer, Confidence: confidence, MessageID: a.MessageID}, nil
	case annotate.Prompt:
		return &TextRecord{Base: base, Answer: value.Answer, Confidence: a.Confidence, MessageID: a.MessageID}, nil
	case annotate.Radio:
		answer, err := serializeAnswer(value.Answer)
		if err != nil {
			return nil, err
		}
		return &RadioRecord{Base: base, Answer: answer, MessageID: a.MessageID}, nil
	case annotate.Checklist:
		answers := make([]Answer, 0, len(value.Answers))
		for _, in := range value.Answers {
			answer, err := serializeAnswer(in)
			if err != nil {
				return nil, err
			}
			answers = append(answers, answer)
		}
		return &ChecklistRecord{Base: base, Answer: answers, MessageID: a.MessageID}, nil
	case annotate.Dropdown:
		return nil, ErrDropdownNotSupported
	default:
		return nil, annotate.Validationf("classification value %T is not supported in the compact format", a.Value)
	}
}

func serializeAnswer(in annotate.ClassificationAnswer) (Answer, error) {
	subclasses, err := serializeSubclasses(in.Classifications)
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		Name:            in.Name,
		SchemaID:        in.FeatureSchemaID,
		Confidence:      in.Confidence,
		Classifications: subclasses,
	}, nil
}

func serializeSubclasses(list []annotate.ClassificationAnnotation) ([]Subclass, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]Subclass, 0, len(list))
	for i := range list {
		sub, err := serializeSubclass(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func serializeSubclass(a *annotate.ClassificationAnnotation) (Subclass, error) {
	sub := Subclass{Name: a.Name, SchemaID: a.FeatureSchemaID, Confidence: a.Confidence, MessageID: a.MessageID}
	switch value := a.Value.(type) {
	case annotate.Text:
		raw, err := json.Marshal(value.Answer)
		if err != nil {
			return Subclass{}, err
		}
		if sub.Confidence == nil {
			sub.Confidence = value.Confidence
		}
		sub.Answer = raw
	case annotate.Radio:
		answer, err := serializeAnswer(value.Answer)
		if err != nil {
			return Subclass{}, err
		}
		raw, err := json.Marshal(answer)
		if err != nil {
			return Subclass{}, err
		}
		sub.Answer = raw
	case annotate.Checklist:
		answers := make([]Answer, 0, len(value.Answers))
		for _, in := range value.Answers {
			answer, err := serializeAnswer(in)
			if err != nil {
				return Subclass{}, err
			}
			answers = append(answers, answer)
		}
		raw, err := json.Marshal(answers)
		if err != nil {
			return Subclass{}, err
		}
		sub.Answer = raw
	case annotate.Dropdown:
		return Subclass{}, ErrDropdownNotSupported
	default:
		return Subclass{}, annotate.Validationf("classification value %T is not supported in the compact format", a.Value)
	}
	return sub, nil
}

// serializeVideoGroup emits one record for all frames of one named object.
// Frames group into segments by segment index; within a segment, keyframes
// sort ascending by frame. Interpolated (non-keyframe) frames are not
// emitted.
func serializeVideoGroup(annotations []*annotate.VideoObjectAnnotation, dataRow DataRowRef, groupKey string) (Record, error) {
	first := annotations[0]
	base := Base{UUID: first.UUID, DataRow: dataRow, Name: first.Name, SchemaID: first.FeatureSchemaID}

	bySegment := map[int][]*annotate.VideoObjectAnnotation{}
	for _, a := range annotations {
		index := 0
		if a.SegmentIndex != nil {
			index = *a.SegmentIndex
		}
		bySegment[index] = append(bySegment[index], a)
	}
	indices := make([]int, 0, len(bySegment))
	for index := range bySegment {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	segments := make([]Segment, 0, len(indices))
	for _, index := range indices {
		group := bySegment[index]
		sort.Slice(group, func(i, j int) bool { return group[i].Frame < group[j].Frame })
		keyframes := []Keyframe{}
		for _, a := range group {
			if !a.Keyframe {
				continue
			}
			keyframe, err := serializeKeyframe(a)
			if err != nil {
				return nil, err
			}
			keyframes = append(keyframes, keyframe)
		}
		if len(keyframes) == 0 {
			return nil, annotate.Validationf("video object %q segment %v has no keyframes", first.Identifier(), index)
		}
		segments = append(segments, Segment{Keyframes: keyframes})
	}
	return &VideoObjectRecord{Base: base, Segments: segments, GroupKey: groupKey}, nil
}

func serializeKeyframe(a *annotate.VideoObjectAnnotation) (Keyframe, error) {
	subclasses, err := serializeSubclasses(a.Classifications)
	if err != nil {
		return Keyframe{}, err
	}
	keyframe := Keyframe{Frame: a.Frame, Classifications: subclasses}
	switch value := a.Value.(type) {
	case geom.Point:
		keyframe.Point = &XY{X: value.X, Y: value.Y}
	case *geom.Line:
		keyframe.Line = toXY(value.Points)
	case geom.Rectangle:
		keyframe.BBox = &BBox{Top: value.Start.Y, Left: value.Start.X, Height: value.Height(), Width: value.Width()}
	case *geom.Polygon:
		keyframe.Polygon = toXY(value.Points)
	default:
		return Keyframe{}, annotate.Validationf("video object value %T is not supported in the compact format", a.Value)
	}
	return keyframe, nil
}

func toXY(points []geom.Point) []XY {
	out := make([]XY, 0, len(points))
	for _, p := range points {
		out = append(out, XY{X: p.X, Y: p.Y})
	}
	return out
}
