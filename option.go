package dbx

import "github.com/hashicorp/go-hclog"

// getOpts iterates the inbound Options and returns the resolved set.
func getOpts(opt ...Option) options {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// Option configures pool and store construction. Each constructor reads the
// options it understands and ignores the rest.
type Option func(*options)

type options struct {
	logger  hclog.Logger
	codec   *Codec
	prewarm int
}

func defaultOptions() options {
	return options{
		logger: hclog.NewNullLogger(),
	}
}

// WithLogger routes pool and store logging to l instead of discarding it.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCodec replaces the store's DefaultCodec, typically to install field
// hooks or loose-field decoding.
func WithCodec(c *Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithPrewarm opens n sessions eagerly at pool construction instead of
// lazily on first demand. n is capped at the pool's MaxConns.
func WithPrewarm(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prewarm = n
		}
	}
}
