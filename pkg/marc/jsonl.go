package marc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// WriteJSONL writes records one per line, UTF-8, no trailing whitespace.
func WriteJSONL(w io.Writer, records []*models.CanonicalRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d (%s): %w", i+1, rec.MMSID, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads canonical (or enriched) JSONL, assigning 1-based line
// numbers. Each line is re-validated; a malformed line fails the read.
func ReadJSONL(r io.Reader) ([]*models.CanonicalRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var records []*models.CanonicalRecord
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec models.CanonicalRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.MMSID == "" {
			return nil, fmt.Errorf("line %d: missing mms_id", line)
		}
		rec.JSONLLineNumber = line
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read JSONL: %w", err)
	}
	return records, nil
}
