package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lstore/lstore/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "server host address")
	port := flag.Int("port", 8080, "server port")
	dataDir := flag.String("data-dir", "./data", "data directory for page files and metadata")
	recordsPerPage := flag.Int("records-per-page", 512, "records per physical page")
	bufferSize := flag.Int("buffer-size", 64, "buffer pool size in frames")
	mergeThreshold := flag.Int("merge-threshold", 10, "tail chain depth that triggers a background merge")
	disableMerge := flag.Bool("disable-merge", false, "disable the background merge worker")
	flushOnClose := flag.Bool("flush-on-close", true, "flush dirty pages on shutdown")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.DataDir = *dataDir
	config.RecordsPerPage = *recordsPerPage
	config.BufferPoolSize = *bufferSize
	config.MergeTailThreshold = *mergeThreshold
	config.EnableBackgroundMerge = !*disableMerge
	config.FlushOnClose = *flushOnClose

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
