package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MessageField is the key used for errors that concern the message as a whole
const MessageField = "message"

// jobSchema is the typed shape a backtest job message must decode into.
// Keys outside this shape are allowed and left untouched.
type jobSchema struct {
	JobID          string         `json:"job_id" validate:"required,max=128"`
	Strategy       string         `json:"strategy" validate:"required,max=64"`
	Symbol         string         `json:"symbol" validate:"required,max=16"`
	StartDate      string         `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate        string         `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	InitialCapital *float64       `json:"initial_capital" validate:"omitnil,gt=0"`
	Params         map[string]any `json:"params"`
}

// schemaKeys lists the json names of the jobSchema fields
var schemaKeys = jsonKeys(reflect.TypeOf(jobSchema{}))

func jsonKeys(t reflect.Type) []string {
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
			keys = append(keys, tag)
		}
	}
	return keys
}

// errorMessages maps validation tags to friendly messages
var errorMessages = map[string]string{
	"required": "The field '%s' is required.",
	"max":      "The field '%s' must be no longer than %s characters.",
	"gt":       "The field '%s' must be greater than %s.",
	"datetime": "The field '%s' must be a date in the format %s.",
}

// Validator checks job messages against the backtest job schema
type Validator struct {
	validate *validator.Validate
}

// New creates a new schema Validator
func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Valid reports whether msg satisfies the schema
func (v *Validator) Valid(msg map[string]any) bool {
	return len(v.ValidateMessage(msg)) == 0
}

// ValidateMessage validates msg and returns a map of JSON field names to
// friendly error messages. An empty map means the message is valid.
func (v *Validator) ValidateMessage(msg map[string]any) map[string]string {
	fieldErrors := make(map[string]string)

	if msg == nil {
		fieldErrors[MessageField] = "The message is required."
		return fieldErrors
	}

	if _, err := json.Marshal(msg); err != nil {
		fieldErrors[MessageField] = fmt.Sprintf("The message is not serializable: %s.", err.Error())
		return fieldErrors
	}

	// encoding/json matches struct tags case-insensitively, so only the
	// exact schema keys are decoded
	known := make(map[string]any, len(schemaKeys))
	for _, key := range schemaKeys {
		if v, ok := msg[key]; ok {
			known[key] = v
		}
	}
	raw, err := json.Marshal(known)
	if err != nil {
		fieldErrors[MessageField] = fmt.Sprintf("The message is not serializable: %s.", err.Error())
		return fieldErrors
	}

	var job jobSchema
	if err := json.Unmarshal(raw, &job); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field := strings.Split(typeErr.Field, ".")[0]
			fieldErrors[field] = fmt.Sprintf("The field '%s' must be of type %s.", field, jsonTypeName(typeErr.Type))
		} else {
			fieldErrors[MessageField] = fmt.Sprintf("The message could not be decoded: %s.", err.Error())
			return fieldErrors
		}
	}

	if err := v.validate.Struct(&job); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			structType := reflect.TypeOf(job)
			for _, e := range validationErrs {
				jsonTag := e.StructField()
				if field, ok := structType.FieldByName(e.StructField()); ok {
					if tag := field.Tag.Get("json"); tag != "" {
						jsonTag = strings.Split(tag, ",")[0]
					}
				}
				// A type error already explains why the field is empty
				if _, exists := fieldErrors[jsonTag]; exists {
					continue
				}
				fieldErrors[jsonTag] = parseMessage(jsonTag, e)
			}
		}
	}

	return fieldErrors
}

// parseMessage builds a friendly error message for a failed validation tag
func parseMessage(jsonTag string, e validator.FieldError) string {
	if msg, exists := errorMessages[e.Tag()]; exists {
		switch strings.Count(msg, "%s") {
		case 1:
			return fmt.Sprintf(msg, jsonTag)
		case 2:
			return fmt.Sprintf(msg, jsonTag, e.Param())
		}
	}
	return fmt.Sprintf("Field '%s' is invalid: %s", jsonTag, e.Tag())
}

func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "unknown"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonTypeName(t.Elem())
	default:
		return t.Kind().String()
	}
}
