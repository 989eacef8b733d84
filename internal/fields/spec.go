package fields

import (
	"regexp"
	"strings"

	"github.com/helixmapr/helixmapr/internal/model"
)

// Option is one selectable related entity for a FOREIGN_KEY field.
type Option struct {
	ID    uint   `json:"id"`
	Label string `json:"label"`
}

// Spec carries everything a rendering layer needs to produce an input control
// for one field without consulting the schema store again.
type Spec struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	HelpText string          `json:"helpText,omitempty"`
	Type     model.FieldType `json:"type"`
	Required bool            `json:"required"`
	ReadOnly bool            `json:"readOnly"`
	Unique   bool            `json:"unique"`
	Group    string          `json:"group,omitempty"`
	Choices  []string        `json:"choices,omitempty"`
	Options  []Option        `json:"options,omitempty"`
	Logic    *model.Logic    `json:"conditionalLogic,omitempty"`
	Initial  interface{}     `json:"initial,omitempty"`

	// Definition is kept for the save path; it is not serialized.
	Definition model.FieldDefinition `json:"-"`
}

// OptionSource supplies the selectable entities for FOREIGN_KEY fields.
type OptionSource func(kind model.RelatedKind) []Option

// BuildSpecs produces the editable field set for an acting role, in schema
// order. A definition whose visible_to_roles excludes the role is skipped
// entirely: an invisible field is never sent to the client, not merely
// disabled. Fields the role may see but not edit come back read-only.
// Existing values (keyed by definition id) become initial values; the
// definition default applies only to new records.
func BuildSpecs(
	definitions []model.FieldDefinition,
	groups map[uint]model.FieldGroup,
	role model.DatabaseRole,
	existing map[uint]model.FieldValue,
	options OptionSource,
	isNew bool,
) []Spec {
	specs := make([]Spec, 0, len(definitions))
	for _, def := range definitions {
		if !def.VisibleToRoles.Allows(role) {
			continue
		}

		spec := Spec{
			Key:        def.Key,
			Label:      def.Label,
			HelpText:   def.HelpText,
			Type:       def.FieldType,
			Required:   def.Required,
			ReadOnly:   !def.EditableToRoles.Allows(role),
			Unique:     def.IsUnique,
			Choices:    def.ParsedChoices(),
			Logic:      def.ConditionalLogic,
			Definition: def,
		}
		if spec.Label == "" {
			spec.Label = def.Name
		}
		if def.GroupID != nil {
			if group, ok := groups[*def.GroupID]; ok {
				spec.Group = group.Name
			}
		}
		if def.FieldType == model.FieldForeignKey && options != nil {
			spec.Options = options(def.RelatedKind)
		}

		if row, ok := existing[def.ID]; ok {
			if value, ok := FromRow(def, row); ok {
				spec.Initial = value.Display()
			}
		} else if isNew && def.DefaultValue != nil {
			spec.Initial = *def.DefaultValue
		}

		specs = append(specs, spec)
	}
	return specs
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable field key from a display name. Keys are derived
// once at creation and never regenerated.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStrip.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
