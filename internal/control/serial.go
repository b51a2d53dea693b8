package control

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// readTimeout bounds each serial read so the reader notices cancellation.
const readTimeout = 500 * time.Millisecond

func openPort(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(&serial.Config{
		Address:  path,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readTimeout,
	})
}

var openPortFn = openPort

// skipTimeouts turns serial read timeouts into retries, returning once data
// arrives or ctx is done.
type skipTimeouts struct {
	ctx context.Context
	r   io.Reader
}

func (t skipTimeouts) Read(p []byte) (int, error) {
	for {
		if err := t.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := t.r.Read(p)
		if errors.Is(err, serial.ErrTimeout) {
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
