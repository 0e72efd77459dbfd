package labelv1

// Package labelv1 implements the verbose per-data-row export format: one
// JSON object per label with human-readable envelope fields and a nested
// Label payload holding objects and classifications (or per-frame records
// for video).

import (
	"encoding/json"
)

// Record is the verbose envelope for one data row. Unknown envelope keys
// survive a round-trip through Extra.
type Record struct {
	ID             string          `json:"ID,omitempty"`
	DataRowID      string          `json:"DataRow ID,omitempty"`
	RowData        string          `json:"Labeled Data,omitempty"`
	Label          json.RawMessage `json:"Label,omitempty"`
	CreatedBy      string          `json:"Created By,omitempty"`
	ProjectName    string          `json:"Project Name,omitempty"`
	DatasetName    string          `json:"Dataset Name,omitempty"`
	CreatedAt      string          `json:"Created At,omitempty"`
	UpdatedAt      string          `json:"Updated At,omitempty"`
	SecondsToLabel float64         `json:"Seconds to Label,omitempty"`
	ExternalID     string          `json:"External ID,omitempty"`
	GlobalKey      string          `json:"Global Key,omitempty"`
	Agreement      *float64        `json:"Agreement,omitempty"`
	BenchmarkID    string          `json:"Benchmark ID,omitempty"`
	Reviews        json.RawMessage `json:"Reviews,omitempty"`
	Skipped        bool            `json:"Skipped,omitempty"`
	HasOpenIssues  *float64        `json:"Has Open Issues,omitempty"`
	DataSplit      string          `json:"Data Split,omitempty"`
	MediaType      string          `json:"media_type,omitempty"`

	// Extra holds envelope keys outside the recognized set, verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// envelopeKeys are the recognized envelope fields. Anything else found on a
// record round-trips through Extra.
var envelopeKeys = map[string]bool{
	"ID":               true,
	"DataRow ID":       true,
	"Labeled Data":     true,
	"Label":            true,
	"Created By":       true,
	"Project Name":     true,
	"Dataset Name":     true,
	"Created At":       true,
	"Updated At":       true,
	"Seconds to Label": true,
	"External ID":      true,
	"Global Key":       true,
	"Agreement":        true,
	"Benchmark ID":     true,
	"Reviews":          true,
	"Skipped":          true,
	"Has Open Issues":  true,
	"Data Split":       true,
	"media_type":       true,
}

func (r *Record) UnmarshalJSON(raw []byte) error {
	type alias Record
	var decoded alias
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	for key := range all {
		if envelopeKeys[key] {
			delete(all, key)
		}
	}
	if len(all) > 0 {
		decoded.Extra = all
	}
	*r = Record(decoded)
	return nil
}

func (r *Record) MarshalJSON() ([]byte, error) {
	type alias Record
	raw, err := json.Marshal((*alias)(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return raw, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, taken := merged[key]; !taken {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// LabelPayload is the non-video Label shape.
type LabelPayload struct {
	Objects         []Object         `json:"objects"`
	Classifications []Classification `json:"classifications"`
}

// FramePayload is one frame record of a video label.
type FramePayload struct {
	FrameNumber     int              `json:"frameNumber"`
	Objects         []Object         `json:"objects"`
	Classifications []Classification `json:"classifications"`
}

// framesURL is the URL form of a video label.
type framesURL struct {
	Frames string `json:"frames"`
}

// Object is one tool payload. Exactly one of the geometry fields is set;
// mask tools carry InstanceURI plus Color, text tools carry Data.Location.
type Object struct {
	FeatureID string `json:"featureId,omitempty"`
	SchemaID  string `json:"schemaId,omitempty"`
	Title     string `json:"title,omitempty"`
	Value     string `json:"value,omitempty"`
	Color     string `json:"color,omitempty"`
	Keyframe  bool   `json:"keyframe,omitempty"`

	BBox        *BBox           `json:"bbox,omitempty"`
	Polygon     []XY            `json:"polygon,omitempty"`
	Line        []XY            `json:"line,omitempty"`
	Point       *XY             `json:"point,omitempty"`
	InstanceURI string          `json:"instanceURI,omitempty"`
	Data        *EntityLocation `json:"data,omitempty"`

	Classifications []Classification `json:"classifications,omitempty"`
}

type BBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
}

type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EntityLocation wraps the character span of a text tool.
type EntityLocation struct {
	Location Span `json:"location"`
}

type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Classification is one question payload. The answer shape decides the
// variant: string answer is free text, object answer is a radio, an answers
// array is a checklist.
type Classification struct {
	FeatureID string          `json:"featureId,omitempty"`
	SchemaID  string          `json:"schemaId,omitempty"`
	Title     string          `json:"title,omitempty"`
	Value     string          `json:"value,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Answers   []AnswerPayload `json:"answers,omitempty"`
}

// AnswerPayload is one selected option.
type AnswerPayload struct {
	FeatureID       string           `json:"featureId,omitempty"`
	SchemaID        string           `json:"schemaId,omitempty"`
	Title           string           `json:"title,omitempty"`
	Value           string           `json:"value,omitempty"`
	Classifications []Classification `json:"classifications,omitempty"`
}
