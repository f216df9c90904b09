package engine

import (
	"bytes"
	"log"
)

type testLogBuffer struct {
	bytes.Buffer
}

func (b *testLogBuffer) logger() *log.Logger {
	return log.New(b, "[placer] ", 0)
}
