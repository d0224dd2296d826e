package flusher

type IFlusher interface {
	Write(key string, data []byte) error
	// Read returns no data and no error for a key never written.
	Read(key string) ([]byte, error)
	Close() error
}
