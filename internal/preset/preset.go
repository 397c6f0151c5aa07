package preset

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type Preset struct {
	Title   string `json:"title"   yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// Catalog holds the built-in message presets per channel.
type Catalog struct {
	Voice []Preset `json:"voice" yaml:"voice"`
	SMS   []Preset `json:"sms"   yaml:"sms"`
}

func Load() (*Catalog, error) {
	return Parse(presetsYAML)
}

func Parse(content []byte) (*Catalog, error) {
	var catalog Catalog

	err := yaml.Unmarshal(content, &catalog)
	if err != nil {
		return nil, err
	}

	return &catalog, nil
}

// Recipient is the data a template can reference.
type Recipient struct {
	Name        string
	PhoneNumber string
	Email       string
}

// Render fills {name}, {phone} and {email}. Unknown placeholders are left untouched.
func Render(template string, recipient Recipient) string {
	return strings.NewReplacer(
		"{name}", recipient.Name,
		"{phone}", recipient.PhoneNumber,
		"{email}", recipient.Email,
	).Replace(template)
}
