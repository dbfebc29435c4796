package events

import (
	"github.com/ChainSafe/chaindb"
)

// chaindbDedupStore persists delivered event keys to an embedded database so
// the seen-set survives process restarts; the bounded lruDedupStore above is
// used where a restart-safe seen-set isn't required (e.g. tests).
type chaindbDedupStore struct {
	db chaindb.Database
}

// NewChainDBDedupStore wraps an already-open chaindb.Database as a
// DedupStore. Callers typically open it with chaindb.NewBadgerDB(path).
func NewChainDBDedupStore(db chaindb.Database) DedupStore {
	return &chaindbDedupStore{db: db}
}

var dedupValue = []byte{0x01}

func (s *chaindbDedupStore) Seen(key string) (bool, error) {
	ok, err := s.db.Has([]byte(key))
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *chaindbDedupStore) MarkSeen(key string) error {
	return s.db.Put([]byte(key), dedupValue)
}
