package mediares

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category describes one background category: the query used against stock
// footage providers and the color of last-resort placeholder clips.
type Category struct {
	SearchTerm string `yaml:"search_term"`
	Color      string `yaml:"color"`
}

// Catalog maps background category names to their search and placeholder
// settings. Unknown categories get a derived entry so resolution never
// fails on a missing catalog line.
type Catalog struct {
	categories map[string]Category
}

const fallbackColor = "0x1a1a2e"

// DefaultCatalog returns the built-in category set.
func DefaultCatalog() *Catalog {
	return &Catalog{categories: map[string]Category{
		"subway_surfers": {SearchTerm: "subway surfers gameplay", Color: "0x2d6cdf"},
		"minecraft":      {SearchTerm: "minecraft parkour gameplay", Color: "0x3e8948"},
		"satisfying":     {SearchTerm: "oddly satisfying", Color: "0x7b3fa0"},
		"nature":         {SearchTerm: "nature scenery vertical", Color: "0x1f6f50"},
		"ocean":          {SearchTerm: "ocean waves aerial", Color: "0x0f4c81"},
		"city":           {SearchTerm: "city timelapse night", Color: "0x37474f"},
		"space":          {SearchTerm: "space stars nebula", Color: "0x0b0c2a"},
		"cooking":        {SearchTerm: "cooking food preparation", Color: "0x8d4a1f"},
	}}
}

// LoadCatalog reads a YAML catalog file and merges it over the defaults.
// File entries win on name collisions.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var entries map[string]Category
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for name, entry := range entries {
		if entry.Color == "" {
			entry.Color = fallbackColor
		}
		catalog.categories[name] = entry
	}
	return catalog, nil
}

// Lookup returns the category entry, deriving a generic one for names the
// catalog does not carry.
func (c *Catalog) Lookup(name string) Category {
	if entry, ok := c.categories[name]; ok {
		return entry
	}
	return Category{
		SearchTerm: strings.ReplaceAll(name, "_", " "),
		Color:      fallbackColor,
	}
}
