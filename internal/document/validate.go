package document

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks a document about to be committed. Tag ids must come from
// tax when it is non-nil.
func (d *Document) Validate(tax *Taxonomy) error {
	rules := []*validation.FieldRules{
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&d.Category, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Sections, validation.Required, validation.Each(validation.By(validSection))),
		validation.Field(&d.Version, validation.Min(0)),
	}
	if tax != nil {
		rules = append(rules,
			validation.Field(&d.EquipmentTags, validation.Each(validation.In(ids(tax.Equipment)...).Error("unknown equipment tag"))),
			validation.Field(&d.OperationsTags, validation.Each(validation.In(ids(tax.Operations)...).Error("unknown operations tag"))),
		)
	}
	return asValidationError(validation.ValidateStruct(d, rules...))
}

func validSection(v interface{}) error {
	s, _ := v.(Section)
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Content, validation.Required),
	)
}

// asValidationError reports the first failing field, in field-name order.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &ValidationError{Field: keys[0], Message: errs[keys[0]].Error()}
}
