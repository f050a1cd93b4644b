package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Rule is one data-quality check (or transform) of a project config.
// Properties are sent exactly as their json tags name them.
type Rule interface {
	RuleType() string
}

// NoNullRule flags null values in the selected columns
type NoNullRule struct {
	Columns []string `json:"columns" yaml:"columns" validate:"min=1,unique"`
}

func (NoNullRule) RuleType() string { return "NoNullRule" }

// AbsoluteChangeRule flags consecutive values whose absolute change exceeds Threshold
type AbsoluteChangeRule struct {
	Columns   []string `json:"columns" yaml:"columns" validate:"min=1,unique"`
	Threshold float64  `json:"threshold" yaml:"threshold" validate:"gte=0"`
}

func (AbsoluteChangeRule) RuleType() string { return "AbsoluteChangeRule" }

// DefaultAbsoluteChangeThreshold is the platform default threshold
const DefaultAbsoluteChangeThreshold = 100

// NewAbsoluteChangeRule returns a rule with the default threshold
func NewAbsoluteChangeRule(columns ...string) AbsoluteChangeRule {
	return AbsoluteChangeRule{Columns: columns, Threshold: DefaultAbsoluteChangeThreshold}
}

// LeadingZerosRule flags values with leading zeros (identifiers read as numbers)
type LeadingZerosRule struct {
	Columns []string `json:"columns" yaml:"columns" validate:"min=1"`
}

func (LeadingZerosRule) RuleType() string { return "LeadingZerosRule" }

// MissingReferenceDataRule flags values of Column absent from another project's MapOn column
type MissingReferenceDataRule struct {
	Column        string `json:"column" yaml:"column" validate:"required"`
	ProjectToMap  string `json:"project_to_map" yaml:"project_to_map" validate:"required"`
	MapOn         string `json:"map_on" yaml:"map_on" validate:"required"`
	ToleranceDays int    `json:"tolerance_days" yaml:"tolerance_days" validate:"gte=0"`
}

func (MissingReferenceDataRule) RuleType() string { return "MissingReferenceDataRule" }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RuleError lists every invalid property of one rule
type RuleError struct {
	Rule   string
	Fields []string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Rule, strings.Join(e.Fields, "; "))
}

// CheckRule validates rule properties before they are sent
func CheckRule(r Rule) error {
	if r == nil {
		return errors.New("nil rule")
	}
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &RuleError{Rule: r.RuleType()}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			out.Fields = append(out.Fields, fe.Field()+" is required")
		case "min":
			out.Fields = append(out.Fields, fmt.Sprintf("%s must have at least %s entries", fe.Field(), fe.Param()))
		case "unique":
			out.Fields = append(out.Fields, fe.Field()+" must not repeat entries")
		case "gte":
			out.Fields = append(out.Fields, fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param()))
		default:
			out.Fields = append(out.Fields, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return out
}

// ruleObjects renders rules as [{"type": ..., "properties": {...}}]
func ruleObjects(rules []Rule) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(rules))
	for _, r := range rules {
		if err := CheckRule(r); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"type":       r.RuleType(),
			"properties": r,
		})
	}
	return out, nil
}

// ruleTypes creates an empty rule per type name
var ruleTypes = map[string]func() Rule{
	"NoNullRule":               func() Rule { return &NoNullRule{} },
	"AbsoluteChangeRule":       func() Rule { return &AbsoluteChangeRule{Threshold: DefaultAbsoluteChangeThreshold} },
	"LeadingZerosRule":         func() Rule { return &LeadingZerosRule{} },
	"MissingReferenceDataRule": func() Rule { return &MissingReferenceDataRule{} },
}

// rulesFile is the YAML layout read by ParseRules
type rulesFile struct {
	Rules      []ruleSpec `yaml:"rules"`
	Transforms []ruleSpec `yaml:"transforms"`
}

type ruleSpec struct {
	Type       string    `yaml:"type"`
	Properties yaml.Node `yaml:"properties"`
}

// ParseRules reads rules and transforms from YAML such as
//
//	rules:
//	  - type: NoNullRule
//	    properties: {columns: [close]}
//
// A missing section yields a nil slice, which UpdateConfig leaves unchanged.
func ParseRules(data []byte) (rules, transforms []Rule, err error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if rules, err = decodeSpecs("rules", file.Rules); err != nil {
		return nil, nil, err
	}
	if transforms, err = decodeSpecs("transforms", file.Transforms); err != nil {
		return nil, nil, err
	}
	return rules, transforms, nil
}

func decodeSpecs(section string, specs []ruleSpec) ([]Rule, error) {
	if specs == nil {
		return nil, nil
	}
	out := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		newRule, ok := ruleTypes[spec.Type]
		if !ok {
			return nil, fmt.Errorf("%s[%d]: unknown rule type %q", section, i, spec.Type)
		}
		r := newRule()
		if !spec.Properties.IsZero() {
			if err := spec.Properties.Decode(r); err != nil {
				return nil, fmt.Errorf("%s[%d] %s: %w", section, i, spec.Type, err)
			}
		}
		if err := CheckRule(r); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
