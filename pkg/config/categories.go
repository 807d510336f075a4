package config

import (
	"fmt"
	"strings"
)

// CategoriesVersion is the schema version of the built-in category lists.
const CategoriesVersion = 1

// Categories holds the closed category sets used when classifying records.
// Adding a provider or a yes/no spelling is a configuration change; bump
// Version whenever the lists change so dashboards can tell snapshots apart.
type Categories struct {
	Version   int      `mapstructure:"version" json:"version"`
	Providers []string `mapstructure:"providers" json:"providers"`
	// Yes and No list accepted spellings; the first entry is the label shown.
	Yes []string `mapstructure:"yes" json:"yes"`
	No  []string `mapstructure:"no" json:"no"`
}

// DefaultCategories returns the built-in category lists.
func DefaultCategories() Categories {
	return Categories{
		Version:   CategoriesVersion,
		Providers: []string{"Ericsson", "Huawei", "Nokia", "ZTE", "Samsung"},
		Yes:       []string{"Yes", "Y"},
		No:        []string{"No", "N"},
	}
}

// Validate rejects empty lists and spellings claimed by both Yes and No.
func (c Categories) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("categories.version must be positive, got %d", c.Version)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("categories.providers must not be empty")
	}
	if len(c.Yes) == 0 || len(c.No) == 0 {
		return fmt.Errorf("categories.yes and categories.no must not be empty")
	}
	seen := make(map[string]bool, len(c.Yes))
	for _, s := range c.Yes {
		seen[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, s := range c.No {
		if seen[strings.ToLower(strings.TrimSpace(s))] {
			return fmt.Errorf("spelling %q is listed as both yes and no", s)
		}
	}
	return nil
}

// Choice is a display label and the spellings classified under it.
type Choice struct {
	Label     string
	Spellings []string
}

// YesNo returns the yes and no choices, in that order. Each label is the
// first spelling of its list.
func (c Categories) YesNo() []Choice {
	return []Choice{
		{Label: c.Yes[0], Spellings: c.Yes},
		{Label: c.No[0], Spellings: c.No},
	}
}
