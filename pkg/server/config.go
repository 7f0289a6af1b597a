package server

import "time"

// Config configures the HTTP query façade.
type Config struct {
	Host    string
	Port    int
	DataDir string

	RecordsPerPage        int
	BufferPoolSize        int
	EnableBackgroundMerge bool
	MergeTailThreshold    int
	FlushOnClose          bool

	EnableLogging bool
	EnableCORS    bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the reference tuning for a façade rooted at
// "./data", listening on localhost:8080.
func DefaultConfig() *Config {
	return &Config{
		Host:                  "localhost",
		Port:                  8080,
		DataDir:               "./data",
		RecordsPerPage:        512,
		BufferPoolSize:        64,
		EnableBackgroundMerge: true,
		MergeTailThreshold:    10,
		FlushOnClose:          true,
		EnableLogging:         true,
		EnableCORS:            true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
	}
}
