package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show to the buyer
	Fields    map[string]string // optional field errors
	Retry     bool              // the same request may succeed later
	Err       error             // internal cause (logged only)
}
