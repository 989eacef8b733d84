// Package fields implements the dynamic custom-field engine: the typed value
// union, submission coercion, conditional-display logic, and the editable
// field-spec builder. Everything here is pure; persistence lives in the store.
package fields

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixmapr/helixmapr/internal/model"
)

// DateFormat is the wire and storage form of DATE values.
const DateFormat = "2006-01-02"

// EntityRef is a polymorphic reference stored by FOREIGN_KEY fields.
type EntityRef struct {
	Kind model.RelatedKind `json:"relatedModel"`
	ID   uint              `json:"id"`
}

// Value is the tagged union of the twelve custom field kinds. Kind selects
// which member is meaningful; the rest stay zero.
type Value struct {
	Kind model.FieldType

	Text        string
	Integer     int64
	Decimal     string
	Date        string
	Bool        bool
	Select      string
	MultiSelect []string
	Ref         EntityRef
	File        string
	URL         string
	Email       string
}

// Display returns the JSON-facing form of the value.
func (v Value) Display() interface{} {
	switch v.Kind {
	case model.FieldText, model.FieldLongText:
		return v.Text
	case model.FieldInteger:
		return v.Integer
	case model.FieldDecimal:
		return v.Decimal
	case model.FieldDate:
		return v.Date
	case model.FieldBoolean:
		return v.Bool
	case model.FieldSingleSelect:
		return v.Select
	case model.FieldMultiSelect:
		return v.MultiSelect
	case model.FieldForeignKey:
		return v.Ref
	case model.FieldFile:
		return v.File
	case model.FieldURL:
		return v.URL
	case model.FieldEmail:
		return v.Email
	}
	return nil
}

// Compare returns the form used by conditional-logic evaluation: entity
// references collapse to their id.
func (v Value) Compare() interface{} {
	if v.Kind == model.FieldForeignKey {
		return v.Ref.ID
	}
	return v.Display()
}

// Apply writes the value into its matching typed column after clearing all of
// them, preserving the one-populated-column invariant.
func (v Value) Apply(row *model.FieldValue) {
	row.Clear()
	switch v.Kind {
	case model.FieldText:
		row.ValueText = &v.Text
	case model.FieldLongText:
		row.ValueLongText = &v.Text
	case model.FieldInteger:
		row.ValueInteger = &v.Integer
	case model.FieldDecimal:
		row.ValueDecimal = &v.Decimal
	case model.FieldDate:
		row.ValueDate = &v.Date
	case model.FieldBoolean:
		row.ValueBoolean = &v.Bool
	case model.FieldSingleSelect:
		row.ValueSingleSelect = &v.Select
	case model.FieldMultiSelect:
		row.ValueMultiSelect = v.MultiSelect
	case model.FieldForeignKey:
		kind := v.Ref.Kind
		id := v.Ref.ID
		row.ValueFKKind = &kind
		row.ValueFKID = &id
	case model.FieldFile:
		row.ValueFile = &v.File
	case model.FieldURL:
		row.ValueURL = &v.URL
	case model.FieldEmail:
		row.ValueEmail = &v.Email
	}
}

// FromRow reads the typed column selected by the definition's kind back into
// a Value. The second return is false when the row carries no value for that
// kind (stale column data from an unsupported type change reads as absent).
func FromRow(def model.FieldDefinition, row model.FieldValue) (Value, bool) {
	v := Value{Kind: def.FieldType}
	switch def.FieldType {
	case model.FieldText:
		if row.ValueText == nil {
			return v, false
		}
		v.Text = *row.ValueText
	case model.FieldLongText:
		if row.ValueLongText == nil {
			return v, false
		}
		v.Text = *row.ValueLongText
	case model.FieldInteger:
		if row.ValueInteger == nil {
			return v, false
		}
		v.Integer = *row.ValueInteger
	case model.FieldDecimal:
		if row.ValueDecimal == nil {
			return v, false
		}
		v.Decimal = *row.ValueDecimal
	case model.FieldDate:
		if row.ValueDate == nil {
			return v, false
		}
		v.Date = *row.ValueDate
	case model.FieldBoolean:
		if row.ValueBoolean == nil {
			return v, false
		}
		v.Bool = *row.ValueBoolean
	case model.FieldSingleSelect:
		if row.ValueSingleSelect == nil {
			return v, false
		}
		v.Select = *row.ValueSingleSelect
	case model.FieldMultiSelect:
		if row.ValueMultiSelect == nil {
			return v, false
		}
		v.MultiSelect = row.ValueMultiSelect
	case model.FieldForeignKey:
		if row.ValueFKKind == nil || row.ValueFKID == nil {
			return v, false
		}
		v.Ref = EntityRef{Kind: *row.ValueFKKind, ID: *row.ValueFKID}
	case model.FieldFile:
		if row.ValueFile == nil {
			return v, false
		}
		v.File = *row.ValueFile
	case model.FieldURL:
		if row.ValueURL == nil {
			return v, false
		}
		v.URL = *row.ValueURL
	case model.FieldEmail:
		if row.ValueEmail == nil {
			return v, false
		}
		v.Email = *row.ValueEmail
	default:
		return v, false
	}
	return v, true
}

// IsEmpty reports whether a raw submission counts as "no value". Boolean false
// is a value, not an absence.
func IsEmpty(def model.FieldDefinition, raw interface{}) bool {
	if raw == nil {
		return true
	}
	switch actual := raw.(type) {
	case string:
		return strings.TrimSpace(actual) == "" && def.FieldType != model.FieldBoolean
	case []interface{}:
		return len(actual) == 0
	case []string:
		return len(actual) == 0
	}
	return false
}

// Coerce validates a raw submission against the definition's kind and returns
// the typed value. Callers must have ruled out empty submissions first.
func Coerce(def model.FieldDefinition, raw interface{}) (Value, error) {
	v := Value{Kind: def.FieldType}
	switch def.FieldType {
	case model.FieldText, model.FieldLongText:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected text")
		}
		v.Text = strings.TrimSpace(s)

	case model.FieldInteger:
		n, err := asInt(raw)
		if err != nil {
			return v, err
		}
		v.Integer = n

	case model.FieldDecimal:
		d, err := asDecimal(raw)
		if err != nil {
			return v, err
		}
		v.Decimal = d

	case model.FieldDate:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected a %s date", DateFormat)
		}
		s = strings.TrimSpace(s)
		if _, err := time.Parse(DateFormat, s); err != nil {
			return v, fmt.Errorf("invalid date %q; use %s", s, DateFormat)
		}
		v.Date = s

	case model.FieldBoolean:
		b, err := asBool(raw)
		if err != nil {
			return v, err
		}
		v.Bool = b

	case model.FieldSingleSelect:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected a choice")
		}
		s = strings.TrimSpace(s)
		if !containsString(def.ParsedChoices(), s) {
			return v, fmt.Errorf("%q is not one of the configured choices", s)
		}
		v.Select = s

	case model.FieldMultiSelect:
		values, err := asStringSlice(raw)
		if err != nil {
			return v, err
		}
		valid := def.ParsedChoices()
		for _, s := range values {
			if !containsString(valid, s) {
				return v, fmt.Errorf("%q is not one of the configured choices", s)
			}
		}
		v.MultiSelect = values

	case model.FieldForeignKey:
		if !def.RelatedKind.Valid() {
			return v, fmt.Errorf("definition has no related entity kind")
		}
		id, err := asEntityID(raw)
		if err != nil {
			return v, err
		}
		v.Ref = EntityRef{Kind: def.RelatedKind, ID: id}

	case model.FieldFile:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected a file reference")
		}
		v.File = strings.TrimSpace(s)

	case model.FieldURL:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected a URL")
		}
		s = strings.TrimSpace(s)
		parsed, err := url.ParseRequestURI(s)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return v, fmt.Errorf("invalid URL %q", s)
		}
		v.URL = s

	case model.FieldEmail:
		s, ok := asString(raw)
		if !ok {
			return v, fmt.Errorf("expected an email address")
		}
		s = strings.TrimSpace(s)
		if _, err := mail.ParseAddress(s); err != nil {
			return v, fmt.Errorf("invalid email address %q", s)
		}
		v.Email = s

	default:
		return v, fmt.Errorf("unsupported field type %q", def.FieldType)
	}
	return v, nil
}

func asString(raw interface{}) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

func asInt(raw interface{}) (int64, error) {
	switch actual := raw.(type) {
	case int:
		return int64(actual), nil
	case int64:
		return actual, nil
	case float64:
		if actual != float64(int64(actual)) {
			return 0, fmt.Errorf("expected a whole number")
		}
		return int64(actual), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(actual), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", actual)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected an integer")
}

func asDecimal(raw interface{}) (string, error) {
	switch actual := raw.(type) {
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(actual), nil
	case int64:
		return strconv.FormatInt(actual, 10), nil
	case string:
		s := strings.TrimSpace(actual)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", fmt.Errorf("invalid decimal %q", actual)
		}
		return s, nil
	}
	return "", fmt.Errorf("expected a decimal")
}

func asBool(raw interface{}) (bool, error) {
	switch actual := raw.(type) {
	case bool:
		return actual, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(actual)) {
		case "true", "1", "yes", "y":
			return true, nil
		case "false", "0", "no", "n", "":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", actual)
	}
	return false, fmt.Errorf("expected a boolean")
}

func asStringSlice(raw interface{}) ([]string, error) {
	switch actual := raw.(type) {
	case []string:
		return actual, nil
	case []interface{}:
		values := make([]string, 0, len(actual))
		for _, item := range actual {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			values = append(values, s)
		}
		return values, nil
	case string:
		// A lone string submission is treated as a single selection.
		return []string{actual}, nil
	}
	return nil, fmt.Errorf("expected a list of choices")
}

func asEntityID(raw interface{}) (uint, error) {
	switch actual := raw.(type) {
	case float64:
		if actual < 0 || actual != float64(uint64(actual)) {
			return 0, fmt.Errorf("invalid entity id")
		}
		return uint(actual), nil
	case int:
		if actual < 0 {
			return 0, fmt.Errorf("invalid entity id")
		}
		return uint(actual), nil
	case int64:
		if actual < 0 {
			return 0, fmt.Errorf("invalid entity id")
		}
		return uint(actual), nil
	case uint:
		return actual, nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(actual), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid entity id %q", actual)
		}
		return uint(n), nil
	case map[string]interface{}:
		if id, ok := actual["id"]; ok {
			return asEntityID(id)
		}
	case EntityRef:
		return actual.ID, nil
	}
	return 0, fmt.Errorf("expected an entity reference")
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
