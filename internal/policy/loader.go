package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// APIVersion is the only document version this package reads
const APIVersion = "pdp/v1"

// Document is the serialized form of the authorization tables
type Document struct {
	APIVersion   string                    `yaml:"apiVersion" json:"apiVersion"`
	Roles        map[string][]string       `yaml:"roles" json:"roles"`
	Tenants      map[string]TenantDocument `yaml:"tenants,omitempty" json:"tenants,omitempty"`
	CanaryVenues []string                  `yaml:"canaryVenues,omitempty" json:"canaryVenues,omitempty"`
	Limits       Limits                    `yaml:"limits" json:"limits"`
}

// TenantDocument holds one tenant's allowlists. A nil list leaves the tenant
// unrestricted in that dimension; an empty list permits nothing.
type TenantDocument struct {
	Accounts *[]string `yaml:"accounts,omitempty" json:"accounts,omitempty"`
	Venues   *[]string `yaml:"venues,omitempty" json:"venues,omitempty"`
}

// Loader reads policy documents from disk
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new policy loader
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadFromFile reads, validates and builds a Config from a YAML or JSON file
func (l *Loader) LoadFromFile(filePath string) (*Config, error) {
	ext := filepath.Ext(filePath)
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return nil, fmt.Errorf("unsupported policy file extension %q", ext)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	cfg, err := New(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", filePath, err)
	}

	for _, w := range Warnings(doc) {
		l.logger.Warn("Policy document warning",
			zap.String("file", filePath),
			zap.String("warning", w),
		)
	}

	l.logger.Info("Loaded policy document",
		zap.String("file", filePath),
		zap.Int("roles", len(doc.Roles)),
		zap.Int("tenants", len(doc.Tenants)),
		zap.Strings("canary_venues", cfg.CanaryVenues()),
		zap.String("fingerprint", cfg.Fingerprint()),
	)

	return cfg, nil
}

// Parse decodes a YAML or JSON document. Limits not present in the content
// keep their default values.
func Parse(content []byte) (*Document, error) {
	// JSON is a subset of YAML, so one decoder serves both formats
	doc := &Document{Limits: DefaultLimits()}
	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Marshal encodes a document as YAML
func Marshal(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}
