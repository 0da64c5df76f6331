//go:build !debug

package channel

// New creates a channel holding up to size values. A size of zero or less
// gives an unbuffered channel.
func New[T any](size int) Channel[T] {
	if size <= 0 {
		return NewUnbuffered[T]()
	}
	return NewBuffered[T](size)
}
