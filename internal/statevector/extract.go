package statevector

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultDataKey is the document key OpenSky uses for the state vector list.
const DefaultDataKey = "states"

// Extraction failure reasons.
const (
	ReasonMissingKey = "missing data key"
	ReasonNotList    = "data key is not a list"
)

// ExtractionError reports a document whose shape does not carry a record list.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return e.Reason
}

// Extraction is the result of pulling records out of a fetched document.
type Extraction struct {
	Records []Record // Elements that were arrays, in source order.
	Total   int      // Length of the source list, including skipped elements.
	Skipped int      // Elements that were not arrays.
}

// Extract reads the record list stored under key. A missing or null key and a
// non-list value are errors; an empty list is a successful, empty extraction.
// Elements that are not arrays are skipped and logged.
func Extract(doc any, key string, log zerolog.Logger) (*Extraction, error) {
	if key == "" {
		key = DefaultDataKey
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ExtractionError{Reason: ReasonMissingKey}
	}

	value, ok := obj[key]
	if !ok || value == nil {
		return nil, &ExtractionError{Reason: ReasonMissingKey}
	}

	list, ok := value.([]any)
	if !ok {
		log.Warn().
			Str("key", key).
			Str("type", fmt.Sprintf("%T", value)).
			Msg("data key is not a list")
		return nil, &ExtractionError{Reason: ReasonNotList}
	}

	ext := &Extraction{
		Records: make([]Record, 0, len(list)),
		Total:   len(list),
	}
	for i, item := range list {
		arr, ok := item.([]any)
		if !ok {
			ext.Skipped++
			log.Warn().
				Int("index", i).
				Str("item", truncate(fmt.Sprint(item), 200)).
				Msg("skipping non-list item in source data")
			continue
		}
		ext.Records = append(ext.Records, Record(arr))
	}

	return ext, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
