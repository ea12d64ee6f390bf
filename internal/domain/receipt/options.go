package receipt

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of receipts kept in memory.
// Values <= 0 are ignored.
func WithCapacity(capacity int) Option {
	return func(c *Cache) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}
