package mediadata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bmharper/cimg/v2"
)

// FrameReader yields decoded frames in source order.
type FrameReader interface {
	// Next returns the next (frame index, image). io.EOF signals the end.
	Next() (int, *cimg.Image, error)
	Close() error
}

// Codec opens a downloaded clip for frame extraction.
type Codec interface {
	Open(path string) (FrameReader, error)
}

// VideoData carries a clip. Locators: file path, URL, server reference, or a
// preloaded frame table. If only a URL is known, the clip is downloaded to a
// temporary file once and then decoded incrementally.
type VideoData struct {
	blob
	frames map[int]*cimg.Image
	codec  Codec

	tempPath string
}

type VideoOptions struct {
	Options
	// Frames is a preloaded frame table: index to image.
	Frames map[int]*cimg.Image
	// Codec decodes downloaded clips. Required unless Frames is given.
	Codec Codec
}

func NewVideoData(o VideoOptions) (*VideoData, error) {
	extras := 0
	if len(o.Frames) > 0 {
		extras++
	}
	if err := checkExactlyOne(KindVideo, o.Options, extras); err != nil {
		return nil, err
	}
	return &VideoData{blob: newBlob(KindVideo, o.Options), frames: o.Frames, codec: o.Codec}, nil
}

// Loaded reports whether the frame table is in memory.
func (d *VideoData) Loaded() bool {
	return d.frames != nil
}

// Frame returns one frame by index. The clip must have been preloaded or
// fully iterated with Load first.
func (d *VideoData) Frame(index int) (*cimg.Image, error) {
	if d.frames == nil {
		return nil, fmt.Errorf("video frames are not loaded; iterate the clip or call Load first")
	}
	im, ok := d.frames[index]
	if !ok {
		return nil, fmt.Errorf("no frame %v in clip", index)
	}
	return im, nil
}

// Frames opens a frame iterator. Preloaded frames are served from memory in
// ascending index order; otherwise the clip is fetched (once) and decoded.
func (d *VideoData) Frames(ctx context.Context) (FrameReader, error) {
	if d.frames != nil {
		indices := make([]int, 0, len(d.frames))
		for i := range d.frames {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		return &memoryFrameReader{frames: d.frames, indices: indices}, nil
	}
	if d.codec == nil {
		return nil, fmt.Errorf("video data needs a codec to decode frames")
	}
	path, err := d.localPath(ctx)
	if err != nil {
		return nil, err
	}
	return d.codec.Open(path)
}

// Load iterates the whole clip into the in-memory frame table.
func (d *VideoData) Load(ctx context.Context) error {
	if d.frames != nil {
		return nil
	}
	reader, err := d.Frames(ctx)
	if err != nil {
		return err
	}
	defer reader.Close()
	frames := map[int]*cimg.Image{}
	for {
		index, im, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		frames[index] = im
	}
	d.frames = frames
	return nil
}

// localPath downloads the clip once if it only exists remotely.
func (d *VideoData) localPath(ctx context.Context) (string, error) {
	if d.filePath != "" {
		return d.filePath, nil
	}
	if d.tempPath != "" {
		return d.tempPath, nil
	}
	raw, err := d.Bytes(ctx)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "labelforge-video-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	d.tempPath = f.Name()
	return d.tempPath, nil
}

// Close removes the temporary clip download, if any.
func (d *VideoData) Close() error {
	if d.tempPath != "" {
		err := os.Remove(d.tempPath)
		d.tempPath = ""
		return err
	}
	return nil
}

type memoryFrameReader struct {
	frames  map[int]*cimg.Image
	indices []int
	pos     int
}

func (r *memoryFrameReader) Next() (int, *cimg.Image, error) {
	if r.pos >= len(r.indices) {
		return 0, nil, io.EOF
	}
	index := r.indices[r.pos]
	r.pos++
	return index, r.frames[index], nil
}

func (r *memoryFrameReader) Close() error {
	return nil
}

// MJPEGCodec decodes clips stored as concatenated JPEG frames. Frame indices
// count from zero in stream order.
type MJPEGCodec struct{}

func (MJPEGCodec) Open(path string) (FrameReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &mjpegReader{data: raw}, nil
}

var jpegSOI = []byte{0xFF, 0xD8, 0xFF}

type mjpegReader struct {
	data  []byte
	pos   int
	index int
}

func (r *mjpegReader) Next() (int, *cimg.Image, error) {
	start := bytes.Index(r.data[r.pos:], jpegSOI)
	if start < 0 {
		return 0, nil, io.EOF
	}
	start += r.pos
	end := bytes.Index(r.data[start+2:], jpegSOI)
	if end < 0 {
		end = len(r.data)
	} else {
		end += start + 2
	}
	im, err := cimg.Decompress(r.data[start:end])
	if err != nil {
		return 0, nil, fmt.Errorf("decoding frame %v: %w", r.index, err)
	}
	if im.NChan() != 3 {
		im = im.ToRGB()
	}
	r.pos = end
	index := r.index
	r.index++
	return index, im, nil
}

func (r *mjpegReader) Close() error {
	return nil
}
