package annotate

import (
	"context"

	"github.com/labelforge/labelforge/client"
	"github.com/labelforge/labelforge/mediadata"
)

// Label is the aggregate: one data row plus its annotations. The annotation
// list may mix objects, classifications, relationships, metrics, mask frames
// and frame-indexed video annotations.
type Label struct {
	UID         string
	Data        mediadata.Data
	Annotations []Annotation
	Extra       map[string]any
}

func (l *Label) Validate() error {
	if l.Data == nil {
		return Validationf("a label needs data")
	}
	colors := map[[3]int]bool{}
	for _, a := range l.Annotations {
		if v, ok := a.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		if instance, ok := a.(*MaskInstance); ok {
			triple := instance.Color.Triple()
			if colors[triple] {
				return Validationf("mask instance color %v used twice in one label", triple)
			}
			colors[triple] = true
		}
	}
	return nil
}

// Objects returns only the object annotations (including video and dicom
// variants).
func (l *Label) Objects() []*ObjectAnnotation {
	out := []*ObjectAnnotation{}
	for _, a := range l.Annotations {
		switch obj := a.(type) {
		case *ObjectAnnotation:
			out = append(out, obj)
		case *VideoObjectAnnotation:
			out = append(out, &obj.ObjectAnnotation)
		case *DICOMObjectAnnotation:
			out = append(out, &obj.ObjectAnnotation)
		}
	}
	return out
}

// AddURLToData uploads the label's media bytes through the signer and writes
// the URL back onto the data carrier. If a URL is already set this is a
// no-op.
func (l *Label) AddURLToData(ctx context.Context, signer client.URLSigner) error {
	if l.Data == nil || l.Data.URL() != "" {
		return nil
	}
	data, err := l.Data.Bytes(ctx)
	if err != nil {
		return err
	}
	signed, err := signer.Sign(ctx, data)
	if err != nil {
		return err
	}
	l.Data.SetURL(signed)
	return nil
}

// AddURLToMasks uploads every in-memory mask raster and writes the URLs
// back. Masks sharing a raster are uploaded once. Idempotent.
func (l *Label) AddURLToMasks(ctx context.Context, signer client.URLSigner) error {
	seen := map[*mediadata.MaskData]bool{}
	for _, a := range l.Annotations {
		obj, ok := a.(*ObjectAnnotation)
		if !ok {
			continue
		}
		mask, ok := obj.Value.(*MaskValue)
		if !ok || mask.Mask == nil || seen[mask.Mask] {
			continue
		}
		seen[mask.Mask] = true
		if mask.Mask.URL() != "" {
			continue
		}
		png, err := mask.Mask.PNG(ctx)
		if err != nil {
			return err
		}
		signed, err := signer.Sign(ctx, png)
		if err != nil {
			return err
		}
		mask.Mask.SetURL(signed)
	}
	return nil
}
