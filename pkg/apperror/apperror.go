// Package apperror defines the error taxonomy shared by the table and lobby
// actors. Handlers classify errors at the boundary so a bad request can be
// answered without touching actor state or crashing the run loop.
package apperror

// Validation is a request that is well-formed but not legal right now
// (seat occupied, bad amount, acting out of turn). Safe to show to the caller.
type Validation string

func (v Validation) Error() string {
	return string(v)
}

// NotFound is a reference to a table, player, seat, or reservation that
// does not exist.
type NotFound string

func (n NotFound) Error() string {
	return string(n)
}

// Authorization is a missing or invalid credential. Raised before any
// state is read or written.
type Authorization string

func (a Authorization) Error() string {
	return string(a)
}

// TransientIO is a persistence or broadcast failure that the caller may
// retry. In-memory actor state is not rolled back.
type TransientIO struct {
	Op  string
	Err error
}

func (t TransientIO) Error() string {
	return t.Op + ": " + t.Err.Error()
}

func (t TransientIO) Unwrap() error {
	return t.Err
}

// Protocol is an unparseable or unknown inbound message. The offending
// connection gets an error response and stays open.
type Protocol string

func (p Protocol) Error() string {
	return string(p)
}
