package preload

import "github.com/chdown/preload/internal/lifecycle"

// Public API - Re-export internal types as stable contract

// Player is the media capability managed for each item.
type Player = lifecycle.Player

// Factory builds the (uninitialized) Player for an item. It is called with
// the manager lock held and must not block.
type Factory[T any] func(item T) Player
