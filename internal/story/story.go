// Package story loads story configuration files and renders the system
// prompt that teaches the model the markup grammar.
package story

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/vellum/internal/attributes"
	"github.com/MikeSquared-Agency/vellum/internal/config"
)

const (
	DefaultOpening = "Begin the story."
	DefaultEnding  = "The story is over. Thank you for playing."
)

type Character struct {
	Name        string `yaml:"name" json:"name" validate:"notblank"`
	Description string `yaml:"description" json:"description"`
}

type TextLength struct {
	Min int `yaml:"min" json:"min" validate:"min=0"`
	Max int `yaml:"max" json:"max" validate:"omitempty,gtefield=Min"`
}

type Story struct {
	// Name is the file stem; it is not read from YAML.
	Name string `yaml:"-" json:"name"`

	Title             string             `yaml:"title" json:"title" validate:"notblank"`
	Genre             string             `yaml:"genre" json:"genre" validate:"notblank"`
	Tone              string             `yaml:"tone" json:"tone,omitempty"`
	Background        string             `yaml:"background" json:"background" validate:"notblank"`
	Characters        []Character        `yaml:"characters" json:"characters" validate:"required,min=1,dive"`
	Constraints       []string           `yaml:"constraints" json:"constraints,omitempty"`
	Attributes        map[string]float64 `yaml:"attributes" json:"attributes,omitempty"`
	DynamicAttributes bool               `yaml:"dynamic_attributes" json:"dynamic_attributes"`
	Sounds            []string           `yaml:"sounds" json:"sounds,omitempty"`
	TextLength        TextLength         `yaml:"text_length" json:"text_length"`
	Opening           string             `yaml:"opening" json:"opening,omitempty"`
	Ending            string             `yaml:"ending" json:"ending,omitempty"`
	PromptTemplate    string             `yaml:"prompt_template" json:"-"`
}

// Load reads and validates one story file.
func Load(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML story data and applies defaults.
func Parse(data []byte) (*Story, error) {
	var s Story
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode story: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Opening) == "" {
		s.Opening = DefaultOpening
	}
	if strings.TrimSpace(s.Ending) == "" {
		s.Ending = DefaultEnding
	}
	if s.Attributes == nil {
		s.Attributes = map[string]float64{}
	}
	return &s, nil
}

var validate = newValidator()

// newValidator reports fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Validate reports the first required key that is missing as a
// *config.MissingError.
func (s *Story) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return fmt.Errorf("validate story: %w", err)
	}
	fe := fields[0]
	// Namespace is "Story.<key path>".
	_, key, _ := strings.Cut(fe.Namespace(), ".")
	if strings.HasPrefix(key, "text_length.") {
		return fmt.Errorf("story text_length: invalid range %d..%d", s.TextLength.Min, s.TextLength.Max)
	}
	return &config.MissingError{Scope: "story", Key: key}
}

// AttributePolicy maps dynamic_attributes onto the store policy.
func (s *Story) AttributePolicy() attributes.Policy {
	if s.DynamicAttributes {
		return attributes.Dynamic
	}
	return attributes.Strict
}

// NewAttributes seeds a fresh store from the declared defaults.
func (s *Story) NewAttributes() *attributes.Store {
	return attributes.New(s.Attributes, s.AttributePolicy())
}

// EndingText returns text, or the story's ending when text is blank.
func (s *Story) EndingText(text string) string {
	if strings.TrimSpace(text) == "" {
		return s.Ending
	}
	return text
}
