// Package transcript holds the running text of one recording.
package transcript

import "strings"

// Accumulator concatenates fragments in the order they are appended.
// It is not safe for concurrent use; the recorder loop owns it.
type Accumulator struct {
	b         strings.Builder
	fragments int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) Reset() {
	a.b.Reset()
	a.fragments = 0
}

// Append adds fragment verbatim and returns the full value.
func (a *Accumulator) Append(fragment string) string {
	a.b.WriteString(fragment)
	a.fragments++
	return a.b.String()
}

// Freeze returns the current value without clearing it.
func (a *Accumulator) Freeze() string {
	return a.b.String()
}

func (a *Accumulator) Fragments() int {
	return a.fragments
}
