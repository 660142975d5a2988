package flow

// Composer collects handlers across several calls before a run function is built.
// Composers are immutable; With returns a new one.
type Composer struct {
	bridge   *Bridge
	handlers []Handler
}

// Compose starts a composition. It fails with ErrEmptyHandlerList when
// called without handlers.
func (b *Bridge) Compose(handlers ...Handler) (*Composer, error) {
	if len(handlers) == 0 {
		return nil, ErrEmptyHandlerList
	}
	return &Composer{bridge: b, handlers: append([]Handler(nil), handlers...)}, nil
}

// With returns a composer with more handlers appended after the current ones.
func (c *Composer) With(more ...Handler) *Composer {
	handlers := make([]Handler, 0, len(c.handlers)+len(more))
	handlers = append(handlers, c.handlers...)
	handlers = append(handlers, more...)
	return &Composer{bridge: c.bridge, handlers: handlers}
}

// Handlers returns a copy of the collected handlers in order.
func (c *Composer) Handlers() []Handler {
	return append([]Handler(nil), c.handlers...)
}

// Len returns the number of collected handlers.
func (c *Composer) Len() int {
	return len(c.handlers)
}

// Build returns the run function for the collected handlers.
func (c *Composer) Build() RunFunc {
	return c.bridge.Flow(c.handlers...)
}
