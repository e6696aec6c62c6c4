package memory

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = goerr.New("not found")

// ErrConflict is returned when an optimistic-concurrency update loses a race
var ErrConflict = goerr.New("revision conflict")

// Memory is the in-memory repository backend used for development and tests
type Memory struct {
	connection *connectionRepository
	tokens     *tokenStore
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		connection: newConnectionRepository(),
		tokens:     newTokenStore(),
	}
}

func (m *Memory) Connection() interfaces.ConnectionRepository {
	return m.connection
}

func (m *Memory) Close() error {
	return nil
}
