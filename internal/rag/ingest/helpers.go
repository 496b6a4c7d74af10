package ingest

import (
	"io"
	"time"
)

// nowFunc is indirected so tests can freeze time if ever needed.
var nowFunc = time.Now

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
