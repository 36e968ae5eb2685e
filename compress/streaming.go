package compress

import (
	"io"
	"sync"
)

// streamingDecoder bridges a blocking, pull-based io.Reader-style decompressor (stdlib
// compress/flate.Reader, klauspost/compress/flate.Reader, klauspost/compress/zstd.Decoder) to the
// push/pull DataProcessor contract, generalizing flateProcessor's decompress side (see compress.go)
// for the klauspost-backed Constructors in klauspost.go. One dedicated goroutine runs the decoder
// against the read end of an io.Pipe; Push/Finish write (and close) the write end, and the
// goroutine buffers output into a mutex-guarded slice that pull drains without blocking. finish
// waits for the goroutine to exit, so once it returns every remaining output byte is buffered, and
// pull never reports done before finish has been called. As with
// flateProcessor, this goroutine is a backend-adapter detail, not one of the core state machines
// spec.md §5 forbids from spawning workers.
type streamingDecoder struct {
	pw       *io.PipeWriter
	exited   chan struct{}
	mu       sync.Mutex
	pend     []byte
	finished bool
	done     bool
	ferr     error
}

// newStreamingDecoder starts the background decode loop. open receives the pipe's read end and
// must return the decompressor's io.Reader (and, if it implements io.Closer, it is closed once the
// underlying stream ends).
func newStreamingDecoder(open func(io.Reader) (io.Reader, error)) (*streamingDecoder, error) {
	pr, pw := io.Pipe()
	d := &streamingDecoder{pw: pw, exited: make(chan struct{})}

	r, err := open(pr)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(d.exited)
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				d.mu.Lock()
				d.pend = append(d.pend, buf[:n]...)
				d.mu.Unlock()
			}
			if err != nil {
				d.mu.Lock()
				d.done = true
				if err != io.EOF {
					d.ferr = err
				}
				d.mu.Unlock()
				if closer, ok := r.(io.Closer); ok {
					_ = closer.Close()
				}
				return
			}
		}
	}()

	return d, nil
}

func (d *streamingDecoder) push(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := d.pw.Write(b)
	return err
}

func (d *streamingDecoder) finish() error {
	err := d.pw.Close()
	<-d.exited
	d.mu.Lock()
	d.finished = true
	d.mu.Unlock()
	return err
}

func (d *streamingDecoder) pull() ([]byte, bool, error) {
	d.mu.Lock()
	out := d.pend
	d.pend = nil
	done, err := d.finished && d.done && len(out) == 0, d.ferr
	d.mu.Unlock()

	if err != nil {
		return out, false, err
	}
	return out, done, nil
}
