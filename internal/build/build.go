// Package build turns a validated draft into the publishable digest,
// applying the degrade-and-publish policy when the quality gate fails.
package build

import (
	"errors"
	"fmt"

	"github.com/mfriman/daybrief/internal/digest"
)

// Policy decides what happens to a draft that failed validation but
// still carries data.
type Policy string

const (
	// PolicyNoRegress publishes a degraded digest only when it covers
	// at least as many domains as the previously published one.
	PolicyNoRegress Policy = "no-regress"
	// PolicyAlwaysLatest publishes every degraded digest that carries
	// any data at all.
	PolicyAlwaysLatest Policy = "always-latest"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyNoRegress, PolicyAlwaysLatest:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown publish policy %q", s)
}

// ErrNoSections rejects a draft in which every section failed. An empty
// digest is never published, under any policy.
var ErrNoSections = errors.New("no section carries data")

// ErrRegression rejects a degraded draft that covers fewer domains than
// the previously published digest.
var ErrRegression = errors.New("digest would regress completeness below the previous run")

// Builder applies one policy. Build is a pure function of its inputs,
// so the same draft and report always produce the same digest.
type Builder struct {
	policy Policy
}

// New creates a builder. An empty policy falls back to no-regress.
func New(policy Policy) *Builder {
	if policy == "" {
		policy = PolicyNoRegress
	}
	return &Builder{policy: policy}
}

// Policy returns the configured policy.
func (b *Builder) Policy() Policy { return b.policy }

// Build constructs the digest or rejects the draft. prevCompleteness is
// the section count of the last published digest, or a negative value
// when none exists. A draft that passed validation publishes
// unconditionally; a degraded one is subject to the policy.
func (b *Builder) Build(draft *digest.Draft, report *digest.Report, prevCompleteness int) (*digest.Digest, error) {
	if !report.Passed {
		completeness := draft.Completeness()
		if completeness == 0 {
			return nil, ErrNoSections
		}
		if b.policy == PolicyNoRegress && prevCompleteness >= 0 && completeness < prevCompleteness {
			return nil, fmt.Errorf("%w: %d section(s) now, %d before", ErrRegression, completeness, prevCompleteness)
		}
	}

	sections := make(map[digest.Domain]digest.SectionResult, len(draft.Sections))
	for d, s := range draft.Sections {
		sections[d] = s
	}

	return &digest.Digest{
		RunID:        draft.RunID,
		CreatedAt:    draft.CreatedAt,
		Sections:     sections,
		QualityScore: report.QualityScore,
		Degraded:     !report.Passed,
	}, nil
}
