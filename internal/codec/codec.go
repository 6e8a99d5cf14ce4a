// Package codec implements the compact result codec: a reversible transform
// between a canonical multi-language result record and a minimal binary blob.
//
// The encoding is deliberately lossy in three documented ways that decode
// cannot undo: the job id survives only as its first 8 characters, timestamps
// lose sub-second precision and explicit timezone (a 2000-2099 UTC window is
// assumed), and a field that was empty before encoding is indistinguishable
// from a field that was never set.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// Version is the 1-byte format tag prefixed to every encoded artifact.
const Version byte = 0x01

// shortIDLen is how many characters of the job id survive encoding.
const shortIDLen = 8

// compactTimeLayout is the 12-digit whole-second UTC timestamp form.
const compactTimeLayout = "060102150405"

var (
	// ErrEmptyArtifact is returned when decoding zero-length input.
	ErrEmptyArtifact = errors.New("codec: empty artifact")

	// ErrUnknownVersion is returned when the version tag is not recognized.
	ErrUnknownVersion = errors.New("codec: unknown format version")
)

// Translation is one translated text with its optional confidence.
type Translation struct {
	TranslatedText string   `json:"translated_text"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Record is the canonical result record: the full aggregated representation
// of a job's translations before compact encoding. Translations is keyed by
// target language, then by source type.
type Record struct {
	JobID        string                                          `json:"job_id"`
	JobType      domain.JobType                                  `json:"job_type"`
	CreatedAt    time.Time                                       `json:"created_at"`
	CompletedAt  *time.Time                                      `json:"completed_at,omitempty"`
	Accuracy     *float64                                        `json:"accuracy,omitempty"`
	ExternalID   string                                          `json:"external_id,omitempty"`
	Translations map[string]map[domain.SourceType]Translation    `json:"translations,omitempty"`
}

// Encode serializes a canonical record to its compact binary form:
// truncate the id, compress timestamps to 12-digit UTC strings, drop empty
// values recursively, marshal to minimal JSON with deterministic key order,
// deflate at maximum ratio, and prefix the version tag. Encoding the same
// record twice yields byte-identical output.
// Parameters:
//   - r: canonical record to encode.
// Returns:
//   - []byte: version-tagged compressed artifact.
//   - error: non-nil if serialization or compression fails.
func Encode(r *Record) ([]byte, error) {
	doc := map[string]interface{}{
		"job_id":   truncateID(r.JobID),
		"job_type": string(r.JobType),
	}
	if !r.CreatedAt.IsZero() {
		doc["created_at"] = compactTime(r.CreatedAt)
	}
	if r.CompletedAt != nil && !r.CompletedAt.IsZero() {
		doc["completed_at"] = compactTime(*r.CompletedAt)
	}
	if r.Accuracy != nil {
		doc["accuracy"] = *r.Accuracy
	}
	doc["external_id"] = r.ExternalID

	translations := map[string]interface{}{}
	for lang, bySource := range r.Translations {
		entry := map[string]interface{}{}
		for source, tr := range bySource {
			item := map[string]interface{}{
				"translated_text": tr.TranslatedText,
			}
			if tr.Confidence != nil {
				item["confidence"] = *tr.Confidence
			}
			entry[string(source)] = item
		}
		translations[lang] = entry
	}
	doc["translations"] = translations

	pruned, _ := prune(doc)

	serialized, err := json.Marshal(pruned)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal record: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(Version)
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("codec: init compressor: %w", err)
	}
	if _, err := zw.Write(serialized); err != nil {
		return nil, fmt.Errorf("codec: compress record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode: strip and check the version tag, decompress, parse,
// and re-expand compact timestamps. Keys absent from the payload decode as
// "not present" (zero values / nil pointers), never as empty values.
// Parameters:
//   - data: version-tagged compressed artifact.
// Returns:
//   - *Record: decoded canonical record.
//   - error: non-nil on version mismatch or corrupt input.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}
	if data[0] != Version {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownVersion, data[0])
	}

	zr, err := gzip.NewReader(bytes.NewReader(data[1:]))
	if err != nil {
		return nil, fmt.Errorf("codec: open compressed payload: %w", err)
	}
	defer zr.Close()

	serialized, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("codec: decompress payload: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(serialized, &doc); err != nil {
		return nil, fmt.Errorf("codec: parse payload: %w", err)
	}

	r := &Record{}
	if v, ok := doc["job_id"].(string); ok {
		r.JobID = v
	}
	if v, ok := doc["job_type"].(string); ok {
		r.JobType = domain.JobType(v)
	}
	if v, ok := doc["created_at"].(string); ok {
		t, err := expandTime(v)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = t
	}
	if v, ok := doc["completed_at"].(string); ok {
		t, err := expandTime(v)
		if err != nil {
			return nil, err
		}
		r.CompletedAt = &t
	}
	if v, ok := doc["accuracy"].(float64); ok {
		r.Accuracy = &v
	}
	if v, ok := doc["external_id"].(string); ok {
		r.ExternalID = v
	}

	if raw, ok := doc["translations"].(map[string]interface{}); ok {
		r.Translations = make(map[string]map[domain.SourceType]Translation, len(raw))
		for lang, v := range raw {
			bySource, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			entry := make(map[domain.SourceType]Translation, len(bySource))
			for source, item := range bySource {
				fields, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				var tr Translation
				if text, ok := fields["translated_text"].(string); ok {
					tr.TranslatedText = text
				}
				if conf, ok := fields["confidence"].(float64); ok {
					tr.Confidence = &conf
				}
				entry[domain.SourceType(source)] = tr
			}
			r.Translations[lang] = entry
		}
	}
	return r, nil
}

// truncateID shortens a job id to its first 8 characters. This is an
// intentional irreversible shortening; downstream consumers depend on the
// short form.
func truncateID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// compactTime renders a timestamp as a fixed 12-digit YYMMDDHHMMSS string,
// truncated to whole-second UTC resolution.
func compactTime(t time.Time) string {
	return t.UTC().Format(compactTimeLayout)
}

// expandTime parses a 12-digit compact timestamp back into a full UTC
// date-time. The 2000-2099 century window is assumed explicitly because the
// stdlib two-digit-year rule would map 69-99 into the 1900s.
func expandTime(s string) (time.Time, error) {
	if len(s) != 12 {
		return time.Time{}, fmt.Errorf("codec: compact timestamp %q: want 12 digits", s)
	}
	fields := make([]int, 6)
	for i := 0; i < 6; i++ {
		n, err := strconv.Atoi(s[i*2 : i*2+2])
		if err != nil {
			return time.Time{}, fmt.Errorf("codec: parse compact timestamp %q: %w", s, err)
		}
		fields[i] = n
	}
	t := time.Date(2000+fields[0], time.Month(fields[1]), fields[2],
		fields[3], fields[4], fields[5], 0, time.UTC)
	// time.Date normalizes out-of-range components; round-tripping catches
	// values like month 13 that normalization would silently absorb.
	if compactTime(t) != s {
		return time.Time{}, fmt.Errorf("codec: compact timestamp %q is out of range", s)
	}
	return t, nil
}

// prune recursively drops keys whose value is null, an empty string, or an
// empty container. The second return reports whether the value itself is
// empty after pruning.
func prune(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case string:
		return val, val == ""
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			cleaned, empty := prune(inner)
			if !empty {
				out[k] = cleaned
			}
		}
		return out, len(out) == 0
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, inner := range val {
			cleaned, empty := prune(inner)
			if !empty {
				out = append(out, cleaned)
			}
		}
		return out, len(out) == 0
	default:
		// Numbers and booleans are never considered empty; zero is data.
		return val, false
	}
}
