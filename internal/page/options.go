package page

type Option func(*PagedFile)

// WithBufferSize sets how many pages may be buffered at once.
func WithBufferSize(size int) Option {
	return func(f *PagedFile) {
		f.bufferSize = size
	}
}

func WithMetrics(m *Metrics) Option {
	return func(f *PagedFile) {
		f.metrics = m
	}
}
