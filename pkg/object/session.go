package object

import (
	"errors"
	"sync"
)

// ErrSessionClosed is returned by writes on a closed Session.
var ErrSessionClosed = errors.New("insertion session closed")

// Session is an insertion handle over a Store. Each concurrent writer owns
// its own Session; the underlying Store tolerates any number of them.
type Session struct {
	store *Store

	mu      sync.Mutex
	written int
	closed  bool
}

// NewSession opens an insertion session.
func (s *Store) NewSession() *Session {
	return &Session{store: s}
}

func (ss *Session) write(objType ObjectType, data []byte) (Hash, error) {
	ss.mu.Lock()
	closed := ss.closed
	ss.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}

	h, err := ss.store.Write(objType, data)
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	ss.written++
	ss.mu.Unlock()
	return h, nil
}

// WriteBlob stores a blob through the session.
func (ss *Session) WriteBlob(data []byte) (Hash, error) {
	return ss.write(TypeBlob, data)
}

// WriteTree stores a tree through the session.
func (ss *Session) WriteTree(tr *TreeObj) (Hash, error) {
	return ss.write(TypeTree, MarshalTree(tr))
}

// WriteCommit stores a commit through the session.
func (ss *Session) WriteCommit(c *CommitObj) (Hash, error) {
	return ss.write(TypeCommit, MarshalCommit(c))
}

// WriteTag stores an annotated tag through the session.
func (ss *Session) WriteTag(t *TagObj) (Hash, error) {
	return ss.write(TypeTag, MarshalTag(t))
}

// Written returns the number of objects written through the session.
func (ss *Session) Written() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.written
}

// Flush makes all writes durable. Loose objects are renamed into place on
// write, so there is nothing buffered to push out.
func (ss *Session) Flush() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.closed {
		return ErrSessionClosed
	}
	return nil
}

// Close ends the session. Closing twice is a no-op.
func (ss *Session) Close() error {
	ss.mu.Lock()
	ss.closed = true
	ss.mu.Unlock()
	return nil
}
