package annotate

import (
	"net/url"

	"github.com/google/uuid"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/labelforge/labelforge/pkg/geom"
)

// Annotation is the tagged union of everything that can sit in a label's
// annotation list: objects, classifications, their video variants,
// relationships, mask frames and metrics.
type Annotation interface {
	annotation()
}

// ObjectValue is the payload of an ObjectAnnotation: one of geom.Point,
// *geom.Line, geom.Rectangle, *geom.Polygon, *MaskValue, TextEntity,
// ConversationEntity or DocumentEntity.
type ObjectValue any

func checkObjectValue(v ObjectValue) error {
	switch value := v.(type) {
	case geom.Point, *geom.Line, geom.Rectangle, *geom.Polygon:
		return nil
	case *MaskValue:
		return value.Validate()
	case TextEntity:
		return value.Validate()
	case ConversationEntity:
		return value.Validate()
	case DocumentEntity:
		return value.Validate()
	default:
		return Validationf("unsupported object annotation value %T", v)
	}
}

// MaskValue selects the pixels of one color in a mask raster. The raster is
// carried by a MaskData, which may be shared between many MaskValues.
type MaskValue struct {
	Mask  *mediadata.MaskData
	Color geom.Color
}

func (m *MaskValue) Validate() error {
	if m.Mask == nil {
		return Validationf("a mask value needs mask data")
	}
	return nil
}

// ObjectAnnotation decorates a data row with a geometric or entity value.
// Objects may carry sub-classifications, never sub-objects.
type ObjectAnnotation struct {
	FeatureSchema
	UUID            string // Private identity; used by relationships
	Value           ObjectValue
	Classifications []ClassificationAnnotation
	Confidence      *float64
	Extra           map[string]any
}

func (*ObjectAnnotation) annotation() {}

// NewObjectAnnotation generates the private uuid up front.
func NewObjectAnnotation(feature FeatureSchema, value ObjectValue) *ObjectAnnotation {
	return &ObjectAnnotation{
		FeatureSchema: feature,
		UUID:          uuid.NewString(),
		Value:         value,
	}
}

func (a *ObjectAnnotation) Validate() error {
	if err := a.FeatureSchema.Validate(); err != nil {
		return err
	}
	if err := checkObjectValue(a.Value); err != nil {
		return err
	}
	if err := CheckConfidence(a.Confidence); err != nil {
		return err
	}
	for _, c := range a.Classifications {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ClassificationAnnotation attaches a classification value at the label level
// or nested under an object or answer.
type ClassificationAnnotation struct {
	FeatureSchema
	UUID       string
	Value      ClassificationValue
	MessageID  string // For conversational data
	Confidence *float64
	Extra      map[string]any
}

func (*ClassificationAnnotation) annotation() {}

func NewClassificationAnnotation(feature FeatureSchema, value ClassificationValue) *ClassificationAnnotation {
	return &ClassificationAnnotation{
		FeatureSchema: feature,
		UUID:          uuid.NewString(),
		Value:         value,
	}
}

func (a *ClassificationAnnotation) Validate() error {
	if err := a.FeatureSchema.Validate(); err != nil {
		return err
	}
	if a.Value == nil {
		return Validationf("classification %q has no value", a.Identifier())
	}
	if err := a.Value.Validate(); err != nil {
		return err
	}
	return CheckConfidence(a.Confidence)
}

// VideoClassificationAnnotation is a classification pinned to one video frame.
type VideoClassificationAnnotation struct {
	ClassificationAnnotation
	Frame        int
	SegmentIndex *int
}

func (*VideoClassificationAnnotation) annotation() {}

func (a *VideoClassificationAnnotation) Validate() error {
	if a.Frame < 0 {
		return Validationf("video frame numbers are non-negative, got %v", a.Frame)
	}
	return a.ClassificationAnnotation.Validate()
}

// VideoObjectAnnotation is an object on one video frame. Keyframe marks
// frames where the state was explicitly set rather than interpolated.
// Confidence is not supported here.
type VideoObjectAnnotation struct {
	ObjectAnnotation
	Frame        int
	Keyframe     bool
	SegmentIndex *int
}

func (*VideoObjectAnnotation) annotation() {}

// NewVideoObjectAnnotation rejects confidence scores up front.
func NewVideoObjectAnnotation(feature FeatureSchema, value ObjectValue, frame int, keyframe bool) (*VideoObjectAnnotation, error) {
	inner := NewObjectAnnotation(feature, value)
	return &VideoObjectAnnotation{ObjectAnnotation: *inner, Frame: frame, Keyframe: keyframe}, nil
}

func (a *VideoObjectAnnotation) Validate() error {
	if a.Confidence != nil {
		return ErrConfidenceNotSupported
	}
	if a.Frame < 0 {
		return Validationf("video frame numbers are non-negative, got %v", a.Frame)
	}
	return a.ObjectAnnotation.Validate()
}

// GroupKey is the DICOM imaging plane.
type GroupKey string

const (
	GroupKeyAxial    GroupKey = "AXIAL"
	GroupKeySagittal GroupKey = "SAGITTAL"
	GroupKeyCoronal  GroupKey = "CORONAL"
)

func (g GroupKey) Valid() bool {
	return g == GroupKeyAxial || g == GroupKeySagittal || g == GroupKeyCoronal
}

// DICOMObjectAnnotation is a video object annotation on one DICOM plane.
type DICOMObjectAnnotation struct {
	VideoObjectAnnotation
	GroupKey GroupKey
}

func (*DICOMObjectAnnotation) annotation() {}

func (a *DICOMObjectAnnotation) Validate() error {
	if !a.GroupKey.Valid() {
		return Validationf("dicom group key %q is not one of AXIAL, SAGITTAL, CORONAL", a.GroupKey)
	}
	return a.VideoObjectAnnotation.Validate()
}

// RelationshipType is the direction of a relationship.
type RelationshipType string

const (
	RelationshipUnidirectional RelationshipType = "UNIDIRECTIONAL"
	RelationshipBidirectional  RelationshipType = "BIDIRECTIONAL"
)

// RelationshipAnnotation links two object annotations in the same label via
// their private uuids.
type RelationshipAnnotation struct {
	FeatureSchema
	UUID   string
	Source *ObjectAnnotation
	Target *ObjectAnnotation
	Type   RelationshipType
	Extra  map[string]any
}

func (*RelationshipAnnotation) annotation() {}

func NewRelationshipAnnotation(feature FeatureSchema, source, target *ObjectAnnotation, typ RelationshipType) *RelationshipAnnotation {
	return &RelationshipAnnotation{
		FeatureSchema: feature,
		UUID:          uuid.NewString(),
		Source:        source,
		Target:        target,
		Type:          typ,
	}
}

func (a *RelationshipAnnotation) Validate() error {
	if err := a.FeatureSchema.Validate(); err != nil {
		return err
	}
	if a.Source == nil || a.Target == nil {
		return Validationf("a relationship needs both endpoints")
	}
	if a.Type != RelationshipUnidirectional && a.Type != RelationshipBidirectional {
		return Validationf("relationship type %q is not one of UNIDIRECTIONAL, BIDIRECTIONAL", a.Type)
	}
	return nil
}

// MaskFrame is one frame of a video segmentation mask: either a remote
// raster URI or inline PNG bytes, never both.
type MaskFrame struct {
	Index       int
	InstanceURI string
	PNG         []byte
}

func (*MaskFrame) annotation() {}

func (f *MaskFrame) Validate() error {
	if f.Index < 0 {
		return Validationf("mask frame index must be non-negative, got %v", f.Index)
	}
	hasURI := f.InstanceURI != ""
	hasPNG := len(f.PNG) > 0
	if hasURI == hasPNG {
		return Validationf("a mask frame needs exactly one of an instance uri or png bytes")
	}
	if hasURI {
		if _, err := url.ParseRequestURI(f.InstanceURI); err != nil {
			return Validationf("mask frame uri %q is not a valid uri", f.InstanceURI)
		}
	}
	return nil
}

// MaskInstance names one segmentation instance and its unique color within a
// label.
type MaskInstance struct {
	FeatureSchema
	Color geom.Color
}

func (*MaskInstance) annotation() {}

func (m *MaskInstance) Validate() error {
	return m.FeatureSchema.Validate()
}
