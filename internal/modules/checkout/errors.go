package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/validation"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidStep     = errors.New("action not allowed in the current checkout step")
	ErrAlreadyPaid     = errors.New("order already paid")
)

// ValidationError carries per-field messages for the buyer form.
type ValidationError struct {
	Fields validation.FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("invalid personal info: %s", strings.Join(keys, ", "))
}

type StepError struct {
	Step   Step
	Action string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s in step %s", ErrInvalidStep, e.Action, e.Step)
}

func (e *StepError) Is(target error) bool { return target == ErrInvalidStep }
