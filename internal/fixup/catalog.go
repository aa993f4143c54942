package fixup

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Catalog is the canonical list of categories and their services.
type Catalog struct {
	Categories []Category `yaml:"categories" validate:"required,min=1,unique=Slug,dive"`
}

type Category struct {
	Slug        string    `yaml:"slug" validate:"required,slug"`
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
	Aliases     []string  `yaml:"aliases" validate:"dive,required"`
	Services    []Service `yaml:"services" validate:"unique=Name,dive"`
}

type Service struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	BasePrice   int64  `yaml:"base_price" validate:"gt=0"` // kobo
}

// LoadCatalog reads a catalog file, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field rules and that no alias names another canonical category.
func (c *Catalog) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var messages []string
			for _, fieldErr := range validationErrors {
				messages = append(messages, fmt.Sprintf("Field: %s, Tag: %s", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("catalog validation failed: %v", messages)
		}
		return fmt.Errorf("validation error: %w", err)
	}

	owner := make(map[string]string)
	for _, cat := range c.Categories {
		owner[cat.Slug] = cat.Slug
		owner[strings.ToLower(cat.Name)] = cat.Slug
	}
	for _, cat := range c.Categories {
		for _, alias := range cat.Aliases {
			if o, ok := owner[strings.ToLower(alias)]; ok && o != cat.Slug {
				return fmt.Errorf("catalog validation failed: alias %q of %s names category %s", alias, cat.Slug, o)
			}
		}
	}
	return nil
}

// CanonicalSlugs lists category slugs in catalog order.
func (c *Catalog) CanonicalSlugs() []string {
	slugs := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		slugs = append(slugs, cat.Slug)
	}
	return slugs
}

// Category returns the category with slug.
func (c *Catalog) Category(slug string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Slug == slug {
			return cat, true
		}
	}
	return Category{}, false
}
