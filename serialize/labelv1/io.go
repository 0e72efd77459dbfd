package labelv1

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Read parses a verbose export stream into records. Gzip input is detected
// by magic bytes. Exports come in two layouts: one JSON array of records, or
// one record per line.
func Read(r io.Reader) ([]*Record, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readRecords(zr)
	}
	return readRecords(buffered)
}

func readRecords(r io.Reader) ([]*Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		records := []*Record{}
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	records := []*Record{}
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record := &Record{}
		if err := json.Unmarshal(line, record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Write emits the records as one JSON array. Set compress to gzip the
// output.
func Write(w io.Writer, records []*Record, compress bool) error {
	out := w
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		out = zw
	}
	enc := json.NewEncoder(out)
	if err := enc.Encode(records); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
