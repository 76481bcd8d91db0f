package chat

import (
	"context"
	"hash/fnv"
	"sync"
)

// reactionStriping is the number of lock stripes. Reactions to different
// messages rarely collide on a stripe; reactions to the same message always
// share one, which is what serializes the read-modify-write.
const reactionStriping = 64

// ReactionStore is the persistence slice the aggregator needs.
type ReactionStore interface {
	IncrementReaction(ctx context.Context, messageID, symbol string) (map[string]int, error)
}

// ReactionAggregator serializes concurrent reaction updates per message id
// with striped mutexes, so no increment is ever lost. Updates to different
// messages proceed concurrently (modulo stripe collisions).
type ReactionAggregator struct {
	store ReactionStore
	locks [reactionStriping]sync.Mutex
}

// NewReactionAggregator creates an aggregator over the given store.
func NewReactionAggregator(store ReactionStore) *ReactionAggregator {
	return &ReactionAggregator{store: store}
}

// React increments the count for symbol on the message and returns the full
// merged map after the update.
func (a *ReactionAggregator) React(ctx context.Context, messageID, symbol string) (map[string]int, error) {
	lock := &a.locks[stripeFor(messageID)]
	lock.Lock()
	defer lock.Unlock()

	return a.store.IncrementReaction(ctx, messageID, symbol)
}

func stripeFor(messageID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(messageID))
	return h.Sum32() % reactionStriping
}
