package labelv1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/labelforge/labelforge/pkg/geom"
	"github.com/labelforge/labelforge/pkg/prefetch"
)

// How many records we deserialize concurrently. Only matters for video rows,
// which fetch their frame table over the network.
const deserializeWorkers = 4

// Converter converts between verbose export records and labels. Fetcher
// resolves frame tables and mask rasters (it carries the export authorization
// header); Signer is consulted during serialization when a data row has no
// public URL yet.
type Converter struct {
	Logger  logs.Log
	Fetcher client.BlobFetcher
	Signer  client.URLSigner
}

func (c *Converter) log() logs.Log {
	if c.Logger != nil {
		return c.Logger
	}
	logger, _ := logs.NewLog()
	return logger
}

// UnknownMediaError marks a record whose media type could not be inferred.
// Deserialize drops such rows with a warning instead of failing the batch.
type UnknownMediaError struct {
	DataRowID string
	RowData   string
}

func (e *UnknownMediaError) Error() string {
	row := e.RowData
	if len(row) > 80 {
		row = row[:80] + "..."
	}
	return fmt.Sprintf("cannot infer media type of data row %q from %q", e.DataRowID, row)
}

// Deserialize converts verbose records into labels, preserving record order.
// Records whose media type cannot be determined are dropped with a warning.
func (c *Converter) Deserialize(ctx context.Context, records []*Record) (annotate.LabelList, error) {
	results := make([]*annotate.Label, len(records))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(deserializeWorkers)
	for i, record := range records {
		i, record := i, record
		group.Go(func() error {
			label, err := c.deserializeRecord(ctx, record)
			if err != nil {
				var unknown *UnknownMediaError
				if errors.As(err, &unknown) {
					c.log().Warnf("Dropping label: %v", err)
					return nil
				}
				return err
			}
			results[i] = label
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	labels := annotate.LabelList{}
	for _, label := range results {
		if label != nil {
			labels = append(labels, label)
		}
	}
	return labels, nil
}

func (c *Converter) deserializeRecord(ctx context.Context, record *Record) (*annotate.Label, error) {
	payload, frames, err := c.labelPayload(ctx, record)
	if err != nil {
		return nil, err
	}

	var data mediadata.Data
	var annotations []annotate.Annotation
	if frames != nil {
		data, err = mediadata.NewVideoData(mediadata.VideoOptions{Options: c.rowOptions(record)})
		if err != nil {
			return nil, err
		}
		annotations, err = c.deserializeFrames(frames)
	} else {
		data, err = c.inferData(record, payload)
		if err != nil {
			return nil, err
		}
		annotations, err = c.deserializePayload(payload)
	}
	if err != nil {
		return nil, err
	}

	return &annotate.Label{
		UID:         record.ID,
		Data:        data,
		Annotations: annotations,
		Extra:       envelopeExtra(record),
	}, nil
}

// labelPayload decodes the Label field. It comes in three shapes: an object
// with objects and classifications, an inline array of frame records, or an
// object holding a frames URL that resolves to newline-delimited frame
// records. A non-nil frame slice marks the video forms.
func (c *Converter) labelPayload(ctx context.Context, record *Record) (*LabelPayload, []FramePayload, error) {
	raw := bytes.TrimSpace(record.Label)
	if len(raw) == 0 || string(raw) == "null" {
		if record.MediaType == "video" {
			return nil, []FramePayload{}, nil
		}
		return &LabelPayload{}, nil, nil
	}
	if raw[0] == '[' {
		var frames []FramePayload
		if err := json.Unmarshal(raw, &frames); err != nil {
			return nil, nil, fmt.Errorf("data row %q: decoding frame list: %w", record.DataRowID, err)
		}
		return nil, frames, nil
	}
	var indirect framesURL
	if err := json.Unmarshal(raw, &indirect); err == nil && indirect.Frames != "" {
		frames, err := c.fetchFrames(ctx, indirect.Frames)
		if err != nil {
			return nil, nil, fmt.Errorf("data row %q: %w", record.DataRowID, err)
		}
		return nil, frames, nil
	}
	var payload LabelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("data row %q: decoding label: %w", record.DataRowID, err)
	}
	return &payload, nil, nil
}

// fetchFrames downloads a frame table and parses its lines with a worker
// pool. Malformed lines are dropped; we only report the total.
func (c *Converter) fetchFrames(ctx context.Context, url string) ([]FramePayload, error) {
	if c.Fetcher == nil {
		return nil, fmt.Errorf("video frames at %v need a blob fetcher", url)
	}
	raw, err := c.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching video frames: %w", err)
	}

	type parsed struct {
		line  []byte
		frame FramePayload
		ok    bool
	}
	lines := bytes.Split(raw, []byte("\n"))
	pos := 0
	pool := prefetch.New(
		func() (parsed, bool) {
			for pos < len(lines) {
				line := bytes.TrimSpace(lines[pos])
				pos++
				if len(line) > 0 {
					return parsed{line: line}, true
				}
			}
			return parsed{}, false
		},
		func(p parsed) (parsed, error) {
			p.ok = json.Unmarshal(p.line, &p.frame) == nil
			return p, nil
		},
		prefetch.Options{Workers: prefetch.DefaultWorkersNumThreads},
	)

	frames := []FramePayload{}
	dropped := 0
	for {
		p, err := pool.Next()
		if err == prefetch.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if !p.ok {
			dropped++
			continue
		}
		frames = append(frames, p.frame)
	}
	if dropped > 0 {
		c.log().Warnf("Dropped %v malformed frames from %v", dropped, url)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].FrameNumber < frames[j].FrameNumber })
	return frames, nil
}

func (c *Converter) rowOptions(record *Record) mediadata.Options {
	return mediadata.Options{
		URL:        record.RowData,
		UID:        record.DataRowID,
		ExternalID: record.ExternalID,
		GlobalKey:  record.GlobalKey,
		Fetcher:    c.Fetcher,
	}
}

// inferData picks the media carrier. An explicit media_type wins; otherwise
// we look at the row data URL extension, then fall back to treating non-URL
// row data as inline text, then to the presence of text entities.
func (c *Converter) inferData(record *Record, payload *LabelPayload) (mediadata.Data, error) {
	switch record.MediaType {
	case "image":
		return mediadata.NewRasterData(mediadata.RasterOptions{Options: c.rowOptions(record)})
	case "text", "html":
		return mediadata.NewTextData(mediadata.TextOptions{Options: c.rowOptions(record)})
	case "video":
		return mediadata.NewVideoData(mediadata.VideoOptions{Options: c.rowOptions(record)})
	case "":
	default:
		return nil, &UnknownMediaError{DataRowID: record.DataRowID, RowData: record.MediaType}
	}

	row := record.RowData
	lower := strings.ToLower(row)
	remote := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
	switch {
	case remote && hasAnySuffix(lower, ".jpg", ".jpeg", ".png"):
		return mediadata.NewRasterData(mediadata.RasterOptions{Options: c.rowOptions(record)})
	case remote && hasAnySuffix(lower, ".txt", ".text", ".html"):
		return mediadata.NewTextData(mediadata.TextOptions{Options: c.rowOptions(record)})
	case !remote && row != "":
		opts := c.rowOptions(record)
		opts.URL = ""
		return mediadata.NewTextData(mediadata.TextOptions{Options: opts, Text: row})
	case remote && hasTextEntity(payload):
		return mediadata.NewTextData(mediadata.TextOptions{Options: c.rowOptions(record)})
	}
	return nil, &UnknownMediaError{DataRowID: record.DataRowID, RowData: row}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func hasTextEntity(payload *LabelPayload) bool {
	for i := range payload.Objects {
		if payload.Objects[i].Data != nil {
			return true
		}
	}
	return false
}

func (c *Converter) deserializePayload(payload *LabelPayload) ([]annotate.Annotation, error) {
	annotations := []annotate.Annotation{}
	for i := range payload.Objects {
		object, err := c.deserializeObject(&payload.Objects[i])
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, object)
	}
	for i := range payload.Classifications {
		classification, err := deserializeClassification(&payload.Classifications[i])
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, classification)
	}
	return annotations, nil
}

func (c *Converter) deserializeFrames(frames []FramePayload) ([]annotate.Annotation, error) {
	annotations := []annotate.Annotation{}
	for f := range frames {
		frame := &frames[f]
		for i := range frame.Objects {
			object, err := c.deserializeObject(&frame.Objects[i])
			if err != nil {
				return nil, err
			}
			annotations = append(annotations, &annotate.VideoObjectAnnotation{
				ObjectAnnotation: *object,
				Frame:            frame.FrameNumber,
				Keyframe:         frame.Objects[i].Keyframe,
			})
		}
		for i := range frame.Classifications {
			classification, err := deserializeClassification(&frame.Classifications[i])
			if err != nil {
				return nil, err
			}
			annotations = append(annotations, &annotate.VideoClassificationAnnotation{
				ClassificationAnnotation: *classification,
				Frame:                    frame.FrameNumber,
			})
		}
	}
	return annotations, nil
}

func (c *Converter) deserializeObject(object *Object) (*annotate.ObjectAnnotation, error) {
	value, err := c.objectValue(object)
	if err != nil {
		return nil, err
	}
	annotation := &annotate.ObjectAnnotation{
		FeatureSchema: annotate.FeatureSchema{Name: object.Title, FeatureSchemaID: object.SchemaID},
		UUID:          uuid.NewString(),
		Value:         value,
		Extra:         objectExtra(object),
	}
	for i := range object.Classifications {
		nested, err := deserializeClassification(&object.Classifications[i])
		if err != nil {
			return nil, err
		}
		annotation.Classifications = append(annotation.Classifications, *nested)
	}
	return annotation, nil
}

func (c *Converter) objectValue(object *Object) (annotate.ObjectValue, error) {
	switch {
	case object.BBox != nil:
		return geom.RectangleFromXYHW(object.BBox.Left, object.BBox.Top, object.BBox.Height, object.BBox.Width), nil
	case len(object.Polygon) > 0:
		return geom.NewPolygon(fromXY(object.Polygon))
	case len(object.Line) > 0:
		return geom.NewLine(fromXY(object.Line))
	case object.Point != nil:
		return geom.Point{X: object.Point.X, Y: object.Point.Y}, nil
	case object.InstanceURI != "":
		color, err := colorFromHex(object.Color)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", object.Title, err)
		}
		return &annotate.MaskValue{
			Mask:  mediadata.NewMaskDataFromURL(object.InstanceURI, c.Fetcher),
			Color: color,
		}, nil
	case object.Data != nil:
		return annotate.TextEntity{Start: object.Data.Location.Start, End: object.Data.Location.End}, nil
	}
	return nil, fmt.Errorf("object %q has no recognized value", object.Title)
}

func fromXY(points []XY) []geom.Point {
	out := make([]geom.Point, len(points))
	for i, p := range points {
		out[i] = geom.Point{X: p.X, Y: p.Y}
	}
	return out
}

// colorFromHex parses "#rrggbb". Masks without an explicit color select
// white, which is how single-instance masks are painted.
func colorFromHex(hex string) (geom.Color, error) {
	if hex == "" {
		return geom.MakeColor(255, 255, 255)
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return geom.Color{}, fmt.Errorf("invalid color %q", hex)
	}
	return geom.MakeColor(r, g, b)
}

func deserializeClassification(classification *Classification) (*annotate.ClassificationAnnotation, error) {
	value, err := classificationValue(classification)
	if err != nil {
		return nil, err
	}
	return &annotate.ClassificationAnnotation{
		FeatureSchema: annotate.FeatureSchema{Name: classification.Title, FeatureSchemaID: classification.SchemaID},
		UUID:          uuid.NewString(),
		Value:         value,
		Extra:         classificationExtra(classification),
	}, nil
}

// classificationValue dispatches on the answer shape: an answers array is a
// checklist, a string answer is free text, an object answer is a radio, and
// an array answer is the legacy dropdown.
func classificationValue(classification *Classification) (annotate.ClassificationValue, error) {
	if len(classification.Answers) > 0 {
		answers, err := deserializeAnswers(classification.Answers)
		if err != nil {
			return nil, err
		}
		return annotate.Checklist{Answers: answers}, nil
	}
	raw := bytes.TrimSpace(classification.Answer)
	if len(raw) == 0 {
		return nil, fmt.Errorf("classification %q has no answer", classification.Title)
	}
	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return annotate.Text{Answer: text}, nil
	case '{':
		var answer AnswerPayload
		if err := json.Unmarshal(raw, &answer); err != nil {
			return nil, err
		}
		converted, err := deserializeAnswer(&answer)
		if err != nil {
			return nil, err
		}
		return annotate.Radio{Answer: converted}, nil
	case '[':
		var answers []AnswerPayload
		if err := json.Unmarshal(raw, &answers); err != nil {
			return nil, err
		}
		converted, err := deserializeAnswers(answers)
		if err != nil {
			return nil, err
		}
		return annotate.Dropdown{Answers: converted}, nil
	}
	return nil, fmt.Errorf("classification %q has an unrecognized answer shape", classification.Title)
}

func deserializeAnswers(payloads []AnswerPayload) ([]annotate.ClassificationAnswer, error) {
	answers := make([]annotate.ClassificationAnswer, len(payloads))
	for i := range payloads {
		answer, err := deserializeAnswer(&payloads[i])
		if err != nil {
			return nil, err
		}
		answers[i] = answer
	}
	return answers, nil
}

func deserializeAnswer(payload *AnswerPayload) (annotate.ClassificationAnswer, error) {
	answer := annotate.ClassificationAnswer{
		FeatureSchema: annotate.FeatureSchema{Name: payload.Title, FeatureSchemaID: payload.SchemaID},
		Extra:         answerExtra(payload),
	}
	for i := range payload.Classifications {
		nested, err := deserializeClassification(&payload.Classifications[i])
		if err != nil {
			return annotate.ClassificationAnswer{}, err
		}
		answer.Classifications = append(answer.Classifications, *nested)
	}
	return answer, nil
}

func objectExtra(object *Object) map[string]any {
	extra := map[string]any{}
	if object.FeatureID != "" {
		extra["featureId"] = object.FeatureID
	}
	if object.Value != "" {
		extra["value"] = object.Value
	}
	if object.Color != "" {
		extra["color"] = object.Color
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func classificationExtra(classification *Classification) map[string]any {
	extra := map[string]any{}
	if classification.FeatureID != "" {
		extra["featureId"] = classification.FeatureID
	}
	if classification.Value != "" {
		extra["value"] = classification.Value
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func answerExtra(payload *AnswerPayload) map[string]any {
	extra := map[string]any{}
	if payload.FeatureID != "" {
		extra["featureId"] = payload.FeatureID
	}
	if payload.Value != "" {
		extra["value"] = payload.Value
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// envelopeExtra keeps the descriptive envelope fields so serialization can
// restore them.
func envelopeExtra(record *Record) map[string]any {
	extra := map[string]any{}
	put := func(key string, v any) {
		switch value := v.(type) {
		case string:
			if value != "" {
				extra[key] = value
			}
		case float64:
			if value != 0 {
				extra[key] = value
			}
		case bool:
			if value {
				extra[key] = value
			}
		case *float64:
			if value != nil {
				extra[key] = *value
			}
		case json.RawMessage:
			if len(value) > 0 {
				extra[key] = value
			}
		}
	}
	put("Created By", record.CreatedBy)
	put("Project Name", record.ProjectName)
	put("Dataset Name", record.DatasetName)
	put("Created At", record.CreatedAt)
	put("Updated At", record.UpdatedAt)
	put("Seconds to Label", record.SecondsToLabel)
	put("Agreement", record.Agreement)
	put("Benchmark ID", record.BenchmarkID)
	put("Reviews", record.Reviews)
	put("Skipped", record.Skipped)
	put("Has Open Issues", record.HasOpenIssues)
	put("Data Split", record.DataSplit)
	put("media_type", record.MediaType)
	for key, raw := range record.Extra {
		extra[key] = raw
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}
