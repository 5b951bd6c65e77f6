package errors

// Err is a Kind carrying a formatted message and, optionally, an
// underlying error. It mirrors the teacher's customDriverError shape:
// WithMessage/Wrap chain additional context onto an existing error without
// discarding the original kind.
type Err struct {
	kind    Kind
	message string
	wrapped error
}

func (e *Err) Error() string {
	return e.message
}

// Kind returns the semantic category of e, for callers that want to
// switch on it directly instead of using errors.Is.
func (e *Err) Kind() Kind {
	return e.kind
}

// Is lets errors.Is(err, SomeKind) succeed against a wrapped *Err.
func (e *Err) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.kind == k
	}
	other, ok := target.(*Err)
	return ok && other.kind == e.kind
}

func (e *Err) Unwrap() error {
	return e.wrapped
}

// WithMessage appends message to e's own message, keeping e's kind.
func (e *Err) WithMessage(message string) *Err {
	return &Err{
		kind:    e.kind,
		message: e.message + ": " + message,
		wrapped: e,
	}
}

// Wrap attaches an additional underlying error to e, keeping e's kind.
func (e *Err) Wrap(err error) *Err {
	return &Err{
		kind:    e.kind,
		message: e.message + ": " + err.Error(),
		wrapped: err,
	}
}
