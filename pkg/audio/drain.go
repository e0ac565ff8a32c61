package audio

// Drain reads from ch until it is closed and discards every value. Use it
// when a producer must be unblocked but its output is no longer wanted, such
// as the audio channel of a superseded synthesis.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
