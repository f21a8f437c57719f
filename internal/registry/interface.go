package registry

import "github.com/weiawesome/chat-relay/internal/domain"

// Entry is the in-memory record of a joined connection.
type Entry struct {
	ConnectionID string
	Username     string
	Room         string
}

// Registry maps live connections to usernames and rooms.
type Registry interface {
	Register(connectionID, username, room string) error
	Unregister(connectionID string) (Entry, bool)
	ListUsernames(room string) []string
	ConnectionIDs(room string) []string
	Lookup(connectionID string) (Entry, bool)
	Count() int
}

var _ Registry = (*MemoryRegistry)(nil)

// ErrDuplicateConnection is returned when a connection id is registered twice.
var ErrDuplicateConnection = domain.ErrDuplicateConnection
