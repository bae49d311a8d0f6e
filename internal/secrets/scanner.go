// Package secrets keeps credentials out of generated artifacts. Artifacts are
// scanned with the Gitleaks default rule set before a phase result is merged
// into the workflow, and any match is replaced with a redaction marker.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

var (
	// ErrInvalidAllowlist is returned for unparsable allowlist files.
	ErrInvalidAllowlist = errors.New("invalid secrets allowlist")

	// ErrSecretsFound is returned by a blocking gate.
	ErrSecretsFound = errors.New("secrets detected in generated artifacts")
)

// Finding is one detected secret.
type Finding struct {
	File        string `json:"file"`
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Secret      string `json:"-"`
}

// Allowlist holds content patterns that are never reported.
type Allowlist struct {
	Regexes []string `toml:"regexes"`
}

// LoadAllowlist reads a TOML allowlist:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_.*''']
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var doc struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}

	for _, pattern := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: pattern %q in %s: %v", ErrInvalidAllowlist, pattern, path, err)
		}
	}
	return &doc.Allowlist, nil
}

// Detector finds secrets in text.
type Detector interface {
	Scan(file, content string) ([]Finding, error)
}

// GitleaksDetector scans with the Gitleaks default configuration.
type GitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaksDetector builds a detector. allow may be nil.
func NewGitleaksDetector(allow *Allowlist) (*GitleaksDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if allow != nil && len(allow.Regexes) > 0 {
		if err := applyAllowlist(&d.Config, allow); err != nil {
			return nil, err
		}
	}
	return &GitleaksDetector{detector: d}, nil
}

// Scan implements Detector.
func (g *GitleaksDetector) Scan(file, content string) ([]Finding, error) {
	g.mu.Lock()
	results := g.detector.DetectString(content)
	g.mu.Unlock()

	findings := make([]Finding, 0, len(results))
	for _, f := range results {
		findings = append(findings, Finding{
			File:        file,
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Secret:      f.Secret,
		})
	}
	return findings, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, allow *Allowlist) error {
	entry := &gitleaksConfig.Allowlist{Description: "devopsd allowlist"}
	for _, pattern := range allow.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidAllowlist, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// Redact replaces every finding's secret with [REDACTED:rule-id].
// Longer secrets are replaced first so overlapping matches stay hidden.
func Redact(content string, findings []Finding) string {
	sorted := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Secret != "" {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	for _, f := range sorted {
		content = strings.ReplaceAll(content, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return content
}
