// Package chat holds the presentation controllers of the client: the chat
// screen bound to the live message stream and the login/register form.
package chat

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrNotSignedIn      = errors.New("not signed in")
	ErrEmptyCredentials = errors.New("email and password are required")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Alerter shows a modal message to the user.
type Alerter interface {
	Alert(title, message string)
}

// TerminalAlerter prints alerts as a single line.
type TerminalAlerter struct {
	Out io.Writer
}

func (a TerminalAlerter) Alert(title, message string) {
	fmt.Fprintf(a.Out, "%s: %s\n", title, message)
}
