package terraform

import (
	"errors"
	"strings"
)

// Validation problems.
const (
	ProblemNoResources = "No resources defined in Terraform configuration"
	ProblemNoProvider  = "No provider defined in Terraform configuration"
	ProblemMissingType = "Resource missing type"
	ProblemMissingName = "Resource missing name"
	ProblemEmptyConfig = "Terraform configuration is empty"
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("invalid terraform configuration")

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "Terraform validation failed: [" + strings.Join(e.Problems, "; ") + "]"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Validate checks structural requirements. It returns nil or a
// *ValidationError.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{ProblemEmptyConfig}}
	}

	var problems []string
	if len(cfg.Resources) == 0 {
		problems = append(problems, ProblemNoResources)
	}
	if cfg.Provider == "" {
		problems = append(problems, ProblemNoProvider)
	}
	for _, r := range cfg.Resources {
		if r.Type == "" {
			problems = append(problems, ProblemMissingType)
		}
		if r.Name == "" {
			problems = append(problems, ProblemMissingName)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Repair returns a copy of cfg with fixable problems corrected, along with a
// description of each fix. A missing provider is filled with providerBlock
// and resources lacking a type or name are dropped. An empty resource list
// cannot be repaired.
func Repair(cfg *Config, providerBlock string) (*Config, []string) {
	if cfg == nil {
		return nil, nil
	}

	fixed := cfg.Clone()
	var fixes []string

	if fixed.Provider == "" && providerBlock != "" {
		fixed.Provider = providerBlock
		fixes = append(fixes, "added provider "+providerBlock)
	}

	kept := fixed.Resources[:0]
	for _, r := range fixed.Resources {
		if r.Type == "" || r.Name == "" {
			fixes = append(fixes, "dropped incomplete resource "+strings.TrimSpace(r.Type+" "+r.Name))
			continue
		}
		kept = append(kept, r)
	}
	fixed.Resources = kept

	return fixed, fixes
}
