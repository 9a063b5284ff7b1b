package simplayer

import "sync"

// Fleet creates simulated players and remembers every one of them, so that
// callers can inspect how many resources are live at any moment.
type Fleet struct {
	mu        sync.Mutex
	defaults  Options
	overrides map[string]Options
	players   []*Player
}

// NewFleet returns a fleet whose players use opts unless overridden per URI.
func NewFleet(opts Options) *Fleet {
	return &Fleet{
		defaults:  opts,
		overrides: make(map[string]Options),
	}
}

// Override sets the options for players created for uri from now on.
func (f *Fleet) Override(uri string, opts Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[uri] = opts
}

// New creates and records a player for uri.
func (f *Fleet) New(uri string) *Player {
	f.mu.Lock()
	defer f.mu.Unlock()

	opts, ok := f.overrides[uri]
	if !ok {
		opts = f.defaults
	}
	p := New(uri, opts)
	f.players = append(f.players, p)
	return p
}

// Players returns every player created so far, in creation order.
func (f *Fleet) Players() []*Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Player, len(f.players))
	copy(out, f.players)
	return out
}

// ForURI returns the players created for uri, in creation order.
func (f *Fleet) ForURI(uri string) []*Player {
	var out []*Player
	for _, p := range f.Players() {
		if p.uri == uri {
			out = append(out, p)
		}
	}
	return out
}

// Live returns the players that are initialized and not disposed.
func (f *Fleet) Live() []*Player {
	var out []*Player
	for _, p := range f.Players() {
		if p.IsInitialized() && !p.Disposed() {
			out = append(out, p)
		}
	}
	return out
}

// Playing returns the players currently playing.
func (f *Fleet) Playing() []*Player {
	var out []*Player
	for _, p := range f.Players() {
		if p.IsPlaying() {
			out = append(out, p)
		}
	}
	return out
}

// Undisposed returns every player not yet disposed, whatever its state.
func (f *Fleet) Undisposed() []*Player {
	var out []*Player
	for _, p := range f.Players() {
		if !p.Disposed() {
			out = append(out, p)
		}
	}
	return out
}
