//go:build debug

package channel

// New creates a single-slot channel regardless of size, so fanout
// subscribers that fall behind start dropping on the second value.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](1)
}
