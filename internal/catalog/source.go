package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed menu.yaml
var embeddedMenu []byte

// Source loads a complete catalog snapshot.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

type yamlDocument struct {
	Version    string         `yaml:"version"`
	Currency   string         `yaml:"currency"`
	Categories []yamlCategory `yaml:"categories"`
}

type yamlCategory struct {
	Name  string     `yaml:"name"`
	Items []yamlItem `yaml:"items"`
}

type yamlItem struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// YAMLSource reads the versioned menu table from a file, or the embedded copy when Path is empty.
type YAMLSource struct {
	Path string
}

// Load implements Source.
func (s YAMLSource) Load(_ context.Context) (*Catalog, error) {
	data := embeddedMenu
	if s.Path != "" {
		raw, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
		data = raw
	}
	return ParseYAML(data)
}

// ParseYAML decodes a menu document. Prices are decimal strings in major units.
func ParseYAML(data []byte) (*Catalog, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	if doc.Currency == "" {
		return nil, fmt.Errorf("catalog yaml: currency is required")
	}
	var entries []Entry
	for _, cat := range doc.Categories {
		for _, item := range cat.Items {
			price, err := decimal.NewFromString(item.Price)
			if err != nil {
				return nil, fmt.Errorf("%w: %s%s%s: %v", ErrInvalidPrice, cat.Name, Separator, item.Name, err)
			}
			minor, err := ToMinor(price)
			if err != nil {
				return nil, fmt.Errorf("%s%s%s: %w", cat.Name, Separator, item.Name, err)
			}
			entries = append(entries, Entry{Category: cat.Name, Name: item.Name, Price: minor})
		}
	}
	return New(doc.Version, doc.Currency, entries)
}

// EncodeYAML renders a catalog in the document format ParseYAML accepts.
func EncodeYAML(c *Catalog) ([]byte, error) {
	doc := yamlDocument{Version: c.Version(), Currency: c.Currency()}
	for _, cat := range c.Categories() {
		yc := yamlCategory{Name: cat.Name}
		for _, item := range cat.Items {
			yc.Items = append(yc.Items, yamlItem{Name: item.Name, Price: item.Price})
		}
		doc.Categories = append(doc.Categories, yc)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
