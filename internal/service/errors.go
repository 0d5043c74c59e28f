package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrInvalidAlert     = errors.New("invalid alert")
	ErrDuplicateNumber  = errors.New("numero_proposta already in use")
	ErrInvalidProposal  = errors.New("invalid proposal")
	ErrInvalidStatus    = errors.New("invalid status transition")
)

// Violations maps a field name to what is wrong with it.
// A non-empty Violations is an error matching ErrInvalidProposal.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return ErrInvalidProposal.Error() + ": " + strings.Join(parts, "; ")
}

func (v Violations) Is(target error) bool {
	return target == ErrInvalidProposal
}

func required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "campo obrigatório"
	}
}

func positive(field string, value float64, v Violations) {
	if value <= 0 {
		v[field] = "deve ser maior que zero"
	}
}
