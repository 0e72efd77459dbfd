package ndjson

import (
	"fmt"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/annotate/ontology"
	"github.com/labelforge/labelforge/pkg/gen"
)

// Validate checks a decoded batch against an ontology before upload. It
// fails on the first structural problem, with the record's source line when
// the batch came from a parsed stream. Duplicate uuids fail with an
// *annotate.UUIDError.
func Validate(records []Record, o *ontology.Ontology) error {
	uuids := map[string]bool{}
	for _, record := range records {
		base := record.base()
		if base.UUID != "" {
			if uuids[base.UUID] {
				return &annotate.UUIDError{UUID: base.UUID}
			}
			uuids[base.UUID] = true
		}
		if err := validateRecord(record, o); err != nil {
			return err
		}
	}
	return nil
}

func fail(base *Base, format string, args ...any) error {
	return &annotate.ValidationError{Line: base.line, Message: fmt.Sprintf(format, args...)}
}

func validateRecord(record Record, o *ontology.Ontology) error {
	switch r := record.(type) {
	case *PointRecord:
		return checkToolKind(&r.Base, o, ontology.ToolPoint)
	case *LineRecord:
		if len(r.Line) < 2 {
			return fail(&r.Base, "a line needs at least 2 points, got %v", len(r.Line))
		}
		return checkToolKind(&r.Base, o, ontology.ToolLine)
	case *RectangleRecord:
		if r.BBox.Height < 0 || r.BBox.Width < 0 {
			return fail(&r.Base, "bbox height and width must be non-negative")
		}
		return checkToolKind(&r.Base, o, ontology.ToolBBox)
	case *PolygonRecord:
		if len(r.Polygon) < 3 {
			return fail(&r.Base, "a polygon needs at least 3 points, got %v", len(r.Polygon))
		}
		return checkToolKind(&r.Base, o, ontology.ToolPolygon)
	case *MaskRecord:
		if err := validateMaskPayload(&r.Base, r.Mask); err != nil {
			return err
		}
		return checkToolKind(&r.Base, o, ontology.ToolSegmentation, ontology.ToolRasterSegmentation)
	case *EntityRecord:
		if r.Location.Start < 0 || r.Location.End < r.Location.Start {
			return fail(&r.Base, "entity location must satisfy 0 <= start <= end")
		}
		return checkToolKind(&r.Base, o, ontology.ToolNER)
	case *VideoObjectRecord:
		return validateVideoObject(r, o)
	case *RelationshipRecord:
		if r.Relationship.Source == "" || r.Relationship.Target == "" {
			return fail(&r.Base, "a relationship needs both source and target uuids")
		}
		return checkToolKind(&r.Base, o, ontology.ToolRelationship)
	case *TextRecord:
		_, err := checkClassificationKind(&r.Base, o, ontology.ClassText)
		return err
	case *RadioRecord:
		cls, err := checkClassificationKind(&r.Base, o, ontology.ClassRadio)
		if err != nil {
			return err
		}
		return checkAnswerAllowed(&r.Base, cls, r.Answer)
	case *ChecklistRecord:
		cls, err := checkClassificationKind(&r.Base, o, ontology.ClassChecklist)
		if err != nil {
			return err
		}
		if len(r.Answer) == 0 {
			return fail(&r.Base, "a checklist needs at least one answer")
		}
		for _, answer := range r.Answer {
			if err := checkAnswerAllowed(&r.Base, cls, answer); err != nil {
				return err
			}
		}
		return nil
	case *ScalarMetricRecord:
		metric := &annotate.ScalarMetric{
			MetricName:  r.MetricName,
			Aggregation: annotate.Aggregation(r.Aggregation),
			Value:       annotate.ScalarValue{Single: r.MetricValue.Single, PerThreshold: r.MetricValue.PerThreshold},
		}
		if err := metric.Validate(); err != nil {
			return fail(&r.Base, "%v", err)
		}
		return nil
	case *ConfusionMatrixRecord:
		metric := &annotate.ConfusionMatrixMetric{
			MetricName: r.MetricName,
			Value:      annotate.ConfusionMatrixValue{Single: r.MetricValue.Single, PerThreshold: r.MetricValue.PerThreshold},
		}
		if err := metric.Validate(); err != nil {
			return fail(&r.Base, "%v", err)
		}
		return nil
	default:
		return annotate.Validationf("record type %T cannot be validated", record)
	}
}

// checkToolKind resolves the record's tool by name or schema id and verifies
// the declared kind matches one of the allowed tool types.
func checkToolKind(base *Base, o *ontology.Ontology, allowed ...ontology.ToolType) error {
	var tool *ontology.Tool
	switch {
	case base.Name != "":
		tool = o.ToolByName(base.Name)
	case base.SchemaID != "":
		tool = o.ToolBySchemaID(base.SchemaID)
	default:
		return fail(base, "record needs a name or schemaId")
	}
	if tool == nil {
		return fail(base, "ontology has no tool named %q", identifier(base))
	}
	if gen.IndexOf(allowed, tool.Type) == -1 {
		return fail(base, "tool %q has type %v, record requires %v", tool.Name, tool.Type, allowed)
	}
	return nil
}

func checkClassificationKind(base *Base, o *ontology.Ontology, want ontology.ClassificationType) (*ontology.Classification, error) {
	var cls *ontology.Classification
	switch {
	case base.Name != "":
		cls = o.ClassificationByName(base.Name)
	case base.SchemaID != "":
		cls = o.ClassificationBySchemaID(base.SchemaID)
	default:
		return nil, fail(base, "record needs a name or schemaId")
	}
	if cls == nil {
		return nil, fail(base, "ontology has no classification named %q", identifier(base))
	}
	if cls.Type != want {
		return nil, fail(base, "classification %q has type %v, record requires %v", cls.Name, cls.Type, want)
	}
	return cls, nil
}

func checkAnswerAllowed(base *Base, cls *ontology.Classification, answer Answer) error {
	for _, option := range cls.Options {
		if answer.Name != "" && option.Value == answer.Name {
			return nil
		}
		if answer.SchemaID != "" && option.FeatureSchemaID == answer.SchemaID {
			return nil
		}
	}
	name := answer.Name
	if name == "" {
		name = answer.SchemaID
	}
	return fail(base, "answer %q is not an option of classification %q", name, cls.Name)
}

func validateMaskPayload(base *Base, payload MaskPayload) error {
	switch {
	case payload.InstanceURI != "":
		if len(payload.ColorRGB) != 3 {
			return fail(base, "mask colorRGB must have three components")
		}
		for _, c := range payload.ColorRGB {
			if c < 0 || c > 255 {
				return fail(base, "mask colorRGB components must be in [0, 255]")
			}
		}
	case payload.PNG != "":
		// Decoded lazily; nothing structural to check here
	case len(payload.Counts) > 0 || len(payload.Size) > 0:
		if len(payload.Size) != 2 || payload.Size[0] <= 0 || payload.Size[1] <= 0 {
			return fail(base, "mask size must be two positive integers")
		}
		if len(payload.Counts)%2 != 0 {
			return fail(base, "mask counts must pair as (offset, length)")
		}
		for _, c := range payload.Counts {
			if c < 0 {
				return fail(base, "mask counts must be non-negative")
			}
		}
	default:
		return fail(base, "mask needs one of instanceURI, png or counts")
	}
	return nil
}

func validateVideoObject(r *VideoObjectRecord, o *ontology.Ontology) error {
	if len(r.Segments) == 0 {
		return fail(&r.Base, "a video object needs at least one segment")
	}
	var kinds []ontology.ToolType
	for _, segment := range r.Segments {
		if len(segment.Keyframes) == 0 {
			return fail(&r.Base, "a segment needs at least one keyframe")
		}
		previous := -1
		for _, keyframe := range segment.Keyframes {
			if keyframe.Frame <= previous {
				return fail(&r.Base, "keyframes must be in ascending frame order")
			}
			previous = keyframe.Frame
			switch {
			case keyframe.BBox != nil:
				kinds = append(kinds, ontology.ToolBBox)
			case keyframe.Point != nil:
				kinds = append(kinds, ontology.ToolPoint)
			case len(keyframe.Line) > 0:
				if len(keyframe.Line) < 2 {
					return fail(&r.Base, "a line needs at least 2 points")
				}
				kinds = append(kinds, ontology.ToolLine)
			case len(keyframe.Polygon) > 0:
				if len(keyframe.Polygon) < 3 {
					return fail(&r.Base, "a polygon needs at least 3 points")
				}
				kinds = append(kinds, ontology.ToolPolygon)
			default:
				return fail(&r.Base, "keyframe needs one of bbox, point, line or polygon")
			}
		}
	}
	for _, kind := range kinds[1:] {
		if kind != kinds[0] {
			return fail(&r.Base, "all keyframes of a video object must share one geometry kind")
		}
	}
	return checkToolKind(&r.Base, o, kinds[0])
}

func identifier(base *Base) string {
	if base.Name != "" {
		return base.Name
	}
	return base.SchemaID
}
