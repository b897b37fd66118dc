package trace

import (
	"fmt"
	"io"
	"sort"
)

// Parser turns one simulator's trace format into a normalized Sequence.
// Concrete parsers (pkg/trace/spike, pkg/trace/sifive) are external
// collaborators per spec §1 — the core only ever sees their Sequence
// output.
type Parser interface {
	Parse(r io.Reader) (Sequence, error)
}

var formats = map[string]Parser{}

// RegisterFormat makes a parser available under -f/--format by name.
// Format packages call this from an init(), the same registration pattern
// as image.RegisterFormat in the standard library: callers blank-import
// the format package they want (see cmd/rspd/commands.go) and select it here
// by name, which keeps pkg/trace free of a compile-time dependency on any
// specific format.
func RegisterFormat(name string, p Parser) {
	formats[name] = p
}

// Lookup returns the parser registered under name, if any.
func Lookup(name string) (Parser, bool) {
	p, ok := formats[name]
	return p, ok
}

// Names lists registered format names, sorted, for help text and error
// messages.
func Names() []string {
	names := make([]string, 0, len(formats))
	for n := range formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownFormat is returned by Lookup callers that want a ready-made
// error instead of testing the boolean.
type ErrUnknownFormat struct {
	Name string
}

func (e *ErrUnknownFormat) Error() string {
	return fmt.Sprintf("unknown trace format %q (known: %v)", e.Name, Names())
}
