package ingest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

// DefaultStaleness is the maximum accepted message age
const DefaultStaleness = time.Hour

//go:embed schema.json
var messageSchema string

// Timestamps without a zone are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Message is an accepted queue message
type Message struct {
	Timestamp time.Time
	Jobs      []domain.Job
}

// Decoder turns raw queue bodies into jobs. It has no side effects; the
// caller settles the message whatever the outcome.
type Decoder struct {
	staleness time.Duration
	now       func() time.Time
	schema    *gojsonschema.Schema
}

// NewDecoder creates a Decoder rejecting messages older than staleness
func NewDecoder(staleness time.Duration, now func() time.Time) (*Decoder, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if now == nil {
		now = time.Now
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(messageSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile message schema: %w", err)
	}

	return &Decoder{
		staleness: staleness,
		now:       now,
		schema:    schema,
	}, nil
}

// Decode parses body. Errors wrap domain.ErrMalformedMessage when the body is
// not a valid job batch, and domain.ErrStaleMessage when its timestamp is
// missing, unparseable, or at least the staleness window old.
func (d *Decoder) Decode(body []byte) (Message, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Message{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if envelope == nil {
		return Message{}, fmt.Errorf("%w: body is not an object", domain.ErrMalformedMessage)
	}

	timestamp, err := parseTimestamp(envelope["timestamp"])
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", domain.ErrStaleMessage, err)
	}

	if age := d.now().Sub(timestamp); age >= d.staleness {
		return Message{}, fmt.Errorf("%w: timestamp %s is %s old", domain.ErrStaleMessage, timestamp.Format(time.RFC3339), age.Truncate(time.Second))
	}

	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Message{}, fmt.Errorf("%w: %s", domain.ErrMalformedMessage, strings.Join(msgs, "; "))
	}

	jobs := []domain.Job{}
	if raw, ok := envelope["jobs"]; ok {
		var decoded []domain.Job
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return Message{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
		}
		if decoded != nil {
			jobs = decoded
		}
	}

	return Message{Timestamp: timestamp, Jobs: jobs}, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if raw == nil {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}, fmt.Errorf("timestamp is not a string")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not ISO 8601", value)
}

// EncodeMessage renders jobs in the wire format Decode accepts, stamped with timestamp
func EncodeMessage(timestamp time.Time, jobs []domain.Job) ([]byte, error) {
	if jobs == nil {
		jobs = []domain.Job{}
	}
	data, err := json.Marshal(struct {
		Timestamp string       `json:"timestamp"`
		Jobs      []domain.Job `json:"jobs"`
	}{
		Timestamp: timestamp.UTC().Format(time.RFC3339Nano),
		Jobs:      jobs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
