package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Read parses an NDJSON stream into records. Gzip input is detected by magic
// bytes. Blank lines are skipped; line numbers in errors refer to the
// uncompressed stream, 1-based.
func Read(r io.Reader) ([]Record, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLines(zr)
	}
	return readLines(buffered)
}

func readLines(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	records := []Record{}
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		record, err := ParseRecord(raw, line)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Write emits one JSON object per line. Set compress to gzip the output.
func Write(w io.Writer, records []Record, compress bool) error {
	out := w
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		out = zw
	}
	enc := json.NewEncoder(out)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}
