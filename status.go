package preload

// Status is a point-in-time snapshot of manager state.
type Status struct {
	Total       int    // Items in the sequence
	Window      Window // Live window bounds
	Live        int    // Controllers registered in the window
	Ready       int    // Registered controllers that initialized successfully
	Playing     int    // Registered controllers currently playing
	ActiveIndex int    // -1 when nothing is active
	PrevIndex   int    // Last scroll target, -1 before the first scroll and after Reset
	Strategy    Strategy
	Rebuilding  bool
	Paginating  bool
	Disposed    bool
}
