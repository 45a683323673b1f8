package processor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidFormat is returned when a job message fails schema validation
var ErrInvalidFormat = errors.New("invalid message format")

// InvalidFormatError carries the rejected message and the schema violations
type InvalidFormatError struct {
	Message Message
	Fields  map[string]string
}

func (e *InvalidFormatError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidFormat.Error()
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidFormat.Error(), strings.Join(parts, "; "))
}

func (e *InvalidFormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}
