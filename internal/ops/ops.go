// Package ops holds the use-case operations shared by the CLI, web and MCP
// surfaces. Each operation takes an Input struct and returns an Output
// struct or a structured *errors.IntakeError.
package ops

import (
	"fmt"
	"strings"

	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// lookupForm resolves a form name, defaulting to the API form.
func lookupForm(name string) (*form.Registry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = form.FormAPI
	}
	reg, ok := form.Lookup(name)
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown form %q (want %q or %q)", name, form.FormAPI, form.FormContact))
	}
	return reg, nil
}

// requireID trims and checks a record identifier.
func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}
