// Package identifier parses and validates Cloud SQL instance identifiers
// of the form "project:region:instance".
package identifier

import (
	"fmt"
	"strings"
)

// Identifier is a parsed "project:region:instance" instance name. It is
// opaque to every other package in this module except for the project,
// region and name components needed to build admin-API requests and to
// validate a server certificate's embedded identity.
type Identifier struct {
	raw     string
	project string
	region  string
	name    string
}

// String returns the original "project:region:instance" string, the key
// used by the registry.
func (i Identifier) String() string {
	return i.raw
}

// Project returns the GCP project component.
func (i Identifier) Project() string { return i.project }

// Region returns the region component.
func (i Identifier) Region() string { return i.region }

// Name returns the instance name component.
func (i Identifier) Name() string { return i.name }

// Parse validates and parses a "project:region:instance" string.
//
// The project component may itself contain a colon (legacy
// "domain.org:project" projects), so splitting is done from the right.
func Parse(s string) (Identifier, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		// Legacy domain-scoped projects look like "domain.org:project:region:instance".
		if len(parts) == 4 {
			parts = []string{parts[0] + ":" + parts[1], parts[2], parts[3]}
		} else {
			return Identifier{}, fmt.Errorf("%w: %q must have the form project:region:instance", ErrInvalidInstanceName, s)
		}
	}

	project, region, name := parts[0], parts[1], parts[2]
	if project == "" || region == "" || name == "" {
		return Identifier{}, fmt.Errorf("%w: %q has an empty component", ErrInvalidInstanceName, s)
	}

	return Identifier{raw: s, project: project, region: region, name: name}, nil
}
