// Package catalog loads the header vocabularies shared by metric extraction and
// mapping inference. The embedded keywords.yaml can be replaced at runtime by
// pointing EXTRACTOR_KEYWORDS_YAML at another file.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

const keywordsEnv = "EXTRACTOR_KEYWORDS_YAML"

//go:embed keywords.yaml
var embeddedKeywords []byte

type Catalog struct {
	Version int `yaml:"version"`
	// Metrics maps an output metric name (revenue, laborCost, ...) to candidate
	// lowercase header names in priority order.
	Metrics map[string][]string `yaml:"metrics"`
	// DeclaredTypes maps an upload data-type label to exact-case header variants per metric.
	DeclaredTypes map[string]map[string][]string `yaml:"declared_types"`
	// Inference maps a column role to header keywords used when no mapping was supplied.
	Inference map[string][]string `yaml:"inference"`
}

var (
	loadOnce sync.Once
	loaded   *Catalog
	loadErr  error
)

// Current returns the process-wide catalog, falling back to the embedded
// vocabulary when an override cannot be read.
func Current(log *logger.Logger) *Catalog {
	loadOnce.Do(func() {
		loaded, loadErr = load()
	})
	if loadErr != nil {
		if log != nil {
			log.Warn("keyword catalog override failed; using embedded catalog", "error", loadErr)
		}
		return Default()
	}
	return loaded
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default is the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedKeywords)
		if err != nil {
			panic(fmt.Sprintf("embedded keywords.yaml is invalid: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

func load() (*Catalog, error) {
	path := strings.TrimSpace(os.Getenv(keywordsEnv))
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Metrics) == 0 {
		return errors.New("catalog: metrics section is empty")
	}
	for name, words := range c.Metrics {
		if len(words) == 0 {
			return fmt.Errorf("catalog: metric %q has no keywords", name)
		}
		for i, w := range words {
			c.Metrics[name][i] = strings.ToLower(strings.TrimSpace(w))
		}
	}
	for role, words := range c.Inference {
		for i, w := range words {
			c.Inference[role][i] = strings.ToLower(strings.TrimSpace(w))
		}
	}
	return nil
}

// MetricKeywords returns the lowercase candidates for metric, or nil.
func (c *Catalog) MetricKeywords(metric string) []string {
	if c == nil {
		return nil
	}
	return c.Metrics[metric]
}

// DeclaredVariants returns exact header variants for metric under a data-type label.
func (c *Catalog) DeclaredVariants(dataType, metric string) []string {
	if c == nil {
		return nil
	}
	byMetric, ok := c.DeclaredTypes[strings.ToLower(strings.TrimSpace(dataType))]
	if !ok {
		return nil
	}
	return byMetric[metric]
}

func (c *Catalog) InferenceKeywords(role string) []string {
	if c == nil {
		return nil
	}
	return c.Inference[role]
}
