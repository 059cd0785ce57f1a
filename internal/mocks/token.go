package mocks

import "time"

// Token is an mqtt.Token test double. A completed token carries a fixed
// error; a pending token never completes.
type Token struct {
	err  error
	done chan struct{}
}

// NewCompletedToken returns a token that has already finished with err.
func NewCompletedToken(err error) *Token {
	done := make(chan struct{})
	close(done)
	return &Token{err: err, done: done}
}

// NewPendingToken returns a token that never finishes.
func NewPendingToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Wait blocks until the token completes
func (t *Token) Wait() bool {
	<-t.done
	return true
}

// WaitTimeout waits for completion up to timeout
func (t *Token) WaitTimeout(timeout time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel closed on completion
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Error returns the error associated with the token
func (t *Token) Error() error {
	return t.err
}
