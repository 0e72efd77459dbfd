package labelv1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/annotate"
	"github.com/labelforge/labelforge/mediadata"
	"github.com/labelforge/labelforge/pkg/geom"
)

type mapFetcher struct {
	blobs map[string][]byte
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	blob, ok := f.blobs[url]
	if !ok {
		return nil, fmt.Errorf("no blob at %v", url)
	}
	return blob, nil
}

func testConverter(t *testing.T, fetcher *mapFetcher) *Converter {
	return &Converter{Logger: logs.NewTestingLog(t), Fetcher: fetcher}
}

func parseRecord(t *testing.T, raw string) *Record {
	record := &Record{}
	require.NoError(t, json.Unmarshal([]byte(raw), record))
	return record
}

func TestImageLabelDeserialization(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "label1",
		"DataRow ID": "row1",
		"Labeled Data": "https://example.com/photo.jpg",
		"Created By": "annotator@example.com",
		"Project Name": "vehicles",
		"Label": {
			"objects": [
				{
					"featureId": "f1",
					"schemaId": "cschemaid00000000000000r1",
					"title": "car",
					"value": "car",
					"color": "#ff0000",
					"bbox": {"top": 10, "left": 20, "height": 30, "width": 40},
					"classifications": [
						{"title": "occluded", "answer": {"title": "yes", "value": "yes"}}
					]
				}
			],
			"classifications": [
				{"title": "weather", "answer": {"title": "sunny"}},
				{"title": "tags", "answers": [{"title": "day"}, {"title": "urban"}]}
			]
		}
	}`)

	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	require.Len(t, labels, 1)

	label := labels[0]
	require.Equal(t, "label1", label.UID)
	require.Equal(t, mediadata.KindImage, label.Data.Kind())
	require.Equal(t, "row1", label.Data.Reference().UID)
	require.Equal(t, "https://example.com/photo.jpg", label.Data.URL())
	require.Equal(t, "annotator@example.com", label.Extra["Created By"])
	require.Equal(t, "vehicles", label.Extra["Project Name"])
	require.Len(t, label.Annotations, 3)

	car := label.Annotations[0].(*annotate.ObjectAnnotation)
	require.Equal(t, "car", car.Name)
	require.Equal(t, "cschemaid00000000000000r1", car.FeatureSchemaID)
	require.Equal(t, "f1", car.Extra["featureId"])
	box := car.Value.(geom.Rectangle)
	require.Equal(t, 20.0, box.Start.X)
	require.Equal(t, 10.0, box.Start.Y)
	require.Equal(t, 40.0, box.Width())
	require.Equal(t, 30.0, box.Height())
	require.Len(t, car.Classifications, 1)
	occluded := car.Classifications[0].Value.(annotate.Radio)
	require.Equal(t, "yes", occluded.Answer.Name)

	weather := label.Annotations[1].(*annotate.ClassificationAnnotation)
	require.Equal(t, "sunny", weather.Value.(annotate.Radio).Answer.Name)

	tags := label.Annotations[2].(*annotate.ClassificationAnnotation)
	checklist := tags.Value.(annotate.Checklist)
	require.Len(t, checklist.Answers, 2)
	require.Equal(t, "day", checklist.Answers[0].Name)
}

func TestMediaTypeInference(t *testing.T) {
	converter := testConverter(t, nil)
	ctx := context.Background()

	infer := func(rowData, labelField string) (mediadata.Data, error) {
		record := parseRecord(t, `{"ID": "l", "DataRow ID": "r", "Labeled Data": `+mustJSON(rowData)+`, "Label": `+labelField+`}`)
		labels, err := converter.Deserialize(ctx, []*Record{record})
		if err != nil {
			return nil, err
		}
		if len(labels) == 0 {
			return nil, nil
		}
		return labels[0].Data, nil
	}

	empty := `{"objects": [], "classifications": []}`

	data, err := infer("https://example.com/a.png", empty)
	require.NoError(t, err)
	require.Equal(t, mediadata.KindImage, data.Kind())

	data, err = infer("https://example.com/a.txt", empty)
	require.NoError(t, err)
	require.Equal(t, mediadata.KindText, data.Kind())

	data, err = infer("just some prose to label", empty)
	require.NoError(t, err)
	require.Equal(t, mediadata.KindText, data.Kind())
	text, err := data.(*mediadata.TextData).Value(ctx)
	require.NoError(t, err)
	require.Equal(t, "just some prose to label", text)

	// An extensionless URL counts as text when the label has text entities.
	withEntity := `{"objects": [{"title": "name", "data": {"location": {"start": 0, "end": 4}}}], "classifications": []}`
	data, err = infer("https://example.com/export?id=7", withEntity)
	require.NoError(t, err)
	require.Equal(t, mediadata.KindText, data.Kind())

	// Unresolvable rows are dropped, not failed.
	data, err = infer("https://example.com/a.bin", empty)
	require.NoError(t, err)
	require.Nil(t, data)
}

func mustJSON(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestExplicitMediaType(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r", "media_type": "image",
		"Labeled Data": "https://example.com/scan",
		"Label": {"objects": [], "classifications": []}
	}`)
	labels, err := testConverter(t, nil).Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, mediadata.KindImage, labels[0].Data.Kind())
}

func TestMaskObject(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r",
		"Labeled Data": "https://example.com/a.jpg",
		"Label": {"objects": [
			{"title": "sky", "instanceURI": "https://example.com/mask.png", "color": "#00ff00"}
		], "classifications": []}
	}`)
	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	mask := labels[0].Annotations[0].(*annotate.ObjectAnnotation).Value.(*annotate.MaskValue)
	require.Equal(t, "https://example.com/mask.png", mask.Mask.URL())
	require.Equal(t, [3]int{0, 255, 0}, mask.Color.Triple())

	records, err := converter.Serialize(context.Background(), labels)
	require.NoError(t, err)
	var payload LabelPayload
	require.NoError(t, json.Unmarshal(records[0].Label, &payload))
	require.Equal(t, "https://example.com/mask.png", payload.Objects[0].InstanceURI)
	require.Equal(t, "#00ff00", payload.Objects[0].Color)
}

func TestPolygonRingClosed(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r",
		"Labeled Data": "https://example.com/a.jpg",
		"Label": {"objects": [
			{"title": "roof", "polygon": [{"x": 0, "y": 0}, {"x": 10, "y": 0}, {"x": 5, "y": 8}]}
		], "classifications": []}
	}`)
	labels, err := testConverter(t, nil).Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	polygon := labels[0].Annotations[0].(*annotate.ObjectAnnotation).Value.(*geom.Polygon)
	require.Len(t, polygon.Points, 4)
	require.Equal(t, polygon.Points[0], polygon.Points[3])
}

func TestClassificationShapes(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r",
		"Labeled Data": "https://example.com/a.jpg",
		"Label": {"objects": [], "classifications": [
			{"title": "caption", "answer": "a red car"},
			{"title": "weather", "answer": {"title": "sunny"}},
			{"title": "tags", "answers": [{"title": "day"}]},
			{"title": "taxonomy", "answer": [{"title": "animal"}, {"title": "dog"}]}
		]}
	}`)
	labels, err := testConverter(t, nil).Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	annotations := labels[0].Annotations
	require.Len(t, annotations, 4)

	require.Equal(t, annotate.Text{Answer: "a red car"}, annotations[0].(*annotate.ClassificationAnnotation).Value)
	require.IsType(t, annotate.Radio{}, annotations[1].(*annotate.ClassificationAnnotation).Value)
	require.IsType(t, annotate.Checklist{}, annotations[2].(*annotate.ClassificationAnnotation).Value)
	dropdown := annotations[3].(*annotate.ClassificationAnnotation).Value.(annotate.Dropdown)
	require.Len(t, dropdown.Answers, 2)
	require.Equal(t, "dog", dropdown.Answers[1].Name)
}

func TestVideoInlineFrames(t *testing.T) {
	labelField := `[
		{"frameNumber": 1, "objects": [
			{"featureId": "f1", "title": "car", "keyframe": true, "bbox": {"top": 0, "left": 0, "height": 5, "width": 5}}
		], "classifications": []},
		{"frameNumber": 3, "objects": [
			{"featureId": "f1", "title": "car", "keyframe": true, "bbox": {"top": 2, "left": 2, "height": 5, "width": 5}}
		], "classifications": []}
	]`
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r", "media_type": "video",
		"Labeled Data": "https://example.com/clip.mp4",
		"Label": `+labelField+`
	}`)

	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	require.Equal(t, mediadata.KindVideo, labels[0].Data.Kind())
	require.Len(t, labels[0].Annotations, 2)
	first := labels[0].Annotations[0].(*annotate.VideoObjectAnnotation)
	require.Equal(t, 1, first.Frame)
	require.True(t, first.Keyframe)

	records, err := converter.Serialize(context.Background(), labels)
	require.NoError(t, err)
	require.Equal(t, "video", records[0].MediaType)
	require.JSONEq(t, labelField, string(records[0].Label))
}

func TestVideoFramesURL(t *testing.T) {
	frameTable := "https://example.com/frames"
	fetcher := &mapFetcher{blobs: map[string][]byte{
		frameTable: []byte(`{"frameNumber": 2, "objects": [{"title": "car", "keyframe": true, "point": {"x": 3, "y": 4}}], "classifications": []}
this line is not a frame
{"frameNumber": 1, "objects": [{"title": "car", "keyframe": true, "point": {"x": 1, "y": 2}}], "classifications": []}
`),
	}}
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r",
		"Labeled Data": "https://example.com/clip.mp4",
		"Label": {"frames": "`+frameTable+`"}
	}`)

	labels, err := testConverter(t, fetcher).Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Len(t, labels[0].Annotations, 2)
	// Frames come back in ascending order regardless of stream order.
	require.Equal(t, 1, labels[0].Annotations[0].(*annotate.VideoObjectAnnotation).Frame)
	require.Equal(t, 2, labels[0].Annotations[1].(*annotate.VideoObjectAnnotation).Frame)
}

func TestTextEntityRoundTrip(t *testing.T) {
	record := parseRecord(t, `{
		"ID": "l", "DataRow ID": "r",
		"Labeled Data": "https://example.com/doc.txt",
		"Label": {"objects": [
			{"featureId": "f1", "title": "person", "data": {"location": {"start": 12, "end": 19}}}
		], "classifications": []}
	}`)
	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	entity := labels[0].Annotations[0].(*annotate.ObjectAnnotation).Value.(annotate.TextEntity)
	require.Equal(t, 12, entity.Start)
	require.Equal(t, 19, entity.End)

	records, err := converter.Serialize(context.Background(), labels)
	require.NoError(t, err)
	var payload LabelPayload
	require.NoError(t, json.Unmarshal(records[0].Label, &payload))
	require.Equal(t, Span{Start: 12, End: 19}, payload.Objects[0].Data.Location)
}

func TestRoundTrip(t *testing.T) {
	raw := `{
		"ID": "label1",
		"DataRow ID": "row1",
		"Labeled Data": "https://example.com/photo.jpg",
		"External ID": "photo.jpg",
		"Global Key": "gk1",
		"Created By": "annotator@example.com",
		"Project Name": "vehicles",
		"Dataset Name": "street scenes",
		"Created At": "2024-05-01T10:00:00Z",
		"Updated At": "2024-05-02T10:00:00Z",
		"Seconds to Label": 42.5,
		"Agreement": 0.9,
		"Benchmark ID": "bench1",
		"Reviews": [{"score": 1, "createdBy": "reviewer@example.com"}],
		"Has Open Issues": 1,
		"Data Split": "training",
		"media_type": "image",
		"Label": {
			"objects": [
				{
					"featureId": "f1",
					"schemaId": "cschemaid00000000000000r1",
					"title": "car",
					"value": "car",
					"color": "#ff0000",
					"bbox": {"top": 10, "left": 20, "height": 30, "width": 40}
				},
				{
					"featureId": "f2",
					"title": "driver",
					"point": {"x": 25, "y": 15}
				}
			],
			"classifications": [
				{"featureId": "f3", "title": "weather", "value": "weather", "answer": {"featureId": "f4", "title": "sunny", "value": "sunny"}},
				{"featureId": "f5", "title": "tags", "answers": [{"featureId": "f6", "title": "day"}]}
			]
		}
	}`
	record := parseRecord(t, raw)
	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)

	records, err := converter.Serialize(context.Background(), labels)
	require.NoError(t, err)
	require.Len(t, records, 1)
	out, err := json.Marshal(records[0])
	require.NoError(t, err)
	require.JSONEq(t, raw, string(out))
}

func TestUnknownEnvelopeKeysPreserved(t *testing.T) {
	raw := `{
		"ID": "l",
		"DataRow ID": "r",
		"Labeled Data": "https://example.com/a.jpg",
		"media_type": "image",
		"View Label": "https://example.com/editor/l",
		"Custom Scores": {"iou": 0.73, "flags": ["low-light"]},
		"Label": {"objects": [], "classifications": []}
	}`
	record := parseRecord(t, raw)
	require.Equal(t, json.RawMessage(`"https://example.com/editor/l"`), record.Extra["View Label"])

	converter := testConverter(t, nil)
	labels, err := converter.Deserialize(context.Background(), []*Record{record})
	require.NoError(t, err)
	require.Contains(t, labels[0].Extra, "Custom Scores")

	records, err := converter.Serialize(context.Background(), labels)
	require.NoError(t, err)
	out, err := json.Marshal(records[0])
	require.NoError(t, err)
	require.JSONEq(t, raw, string(out))
}

func TestSerializeInlineTextRow(t *testing.T) {
	label := &annotate.Label{
		UID:  "l",
		Data: mediadata.NewTextDataFromText("some prose"),
		Annotations: []annotate.Annotation{
			annotate.NewClassificationAnnotation(
				annotate.FeatureSchema{Name: "caption"},
				annotate.Text{Answer: "short"},
			),
		},
	}
	records, err := testConverter(t, nil).Serialize(context.Background(), annotate.LabelList{label})
	require.NoError(t, err)
	require.Equal(t, "some prose", records[0].RowData)
	require.Equal(t, "text", records[0].MediaType)
}

func TestReadWriteGzip(t *testing.T) {
	records := []*Record{
		parseRecord(t, `{"ID": "a", "DataRow ID": "r1", "Labeled Data": "https://example.com/a.jpg", "Label": {"objects": [], "classifications": []}}`),
		parseRecord(t, `{"ID": "b", "DataRow ID": "r2", "Labeled Data": "https://example.com/b.jpg", "Label": {"objects": [], "classifications": []}}`),
	}

	buffer := &bytes.Buffer{}
	require.NoError(t, Write(buffer, records, true))
	require.Equal(t, byte(0x1f), buffer.Bytes()[0])

	parsed, err := Read(buffer)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	require.Equal(t, "a", parsed[0].ID)
	require.Equal(t, "b", parsed[1].ID)
}

func TestReadLineDelimited(t *testing.T) {
	input := `{"ID": "a", "DataRow ID": "r1"}
{"ID": "b", "DataRow ID": "r2"}
`
	parsed, err := Read(bytes.NewBufferString(input))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	require.Equal(t, "b", parsed[1].ID)
}
