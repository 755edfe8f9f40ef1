package failure

// Result holds either a value or an error, never both. It is the element type of
// the reactive note streams.
type Result[T any] struct {
	value T
	err   error
}

// Ok returns a successful result.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail returns a failed result. A nil err is replaced by a generic storage failure so
// a Result can never be in a "neither" state.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = Storage("failure.result", nil)
	}
	return Result[T]{err: err}
}

// Value returns the payload and whether the result is a success.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.err == nil
}

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error {
	return r.err
}

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}
