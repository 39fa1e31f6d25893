package debugger

import (
	"io"
	"os"
	"sync"
)

// osPipe is replaced in tests to force pipe errors.
var osPipe = os.Pipe

// Streams records stream redirections and undoes them in reverse order.
type Streams struct {
	mu      sync.Mutex
	restore []func()
}

// NewStreams returns an empty redirection stack.
func NewStreams() *Streams {
	return &Streams{}
}

// Push records a restore function. A nil function is ignored.
func (s *Streams) Push(restore func()) {
	if restore == nil {
		return
	}
	s.mu.Lock()
	s.restore = append(s.restore, restore)
	s.mu.Unlock()
}

// Redirect points each *os.File variable at a pipe whose output is copied to
// dst until the redirection is restored. On error the redirections already
// made stay recorded.
func (s *Streams) Redirect(dst io.Writer, files ...**os.File) error {
	for _, f := range files {
		r, w, err := osPipe()
		if err != nil {
			return err
		}
		target, prev := f, *f
		*target = w
		done := make(chan struct{})
		go func() {
			defer close(done)
			io.Copy(dst, r)
			r.Close()
		}()
		s.Push(func() {
			*target = prev
			w.Close()
			<-done
		})
	}
	return nil
}

// Restore undoes every recorded redirection, newest first. Output already
// written to a redirected stream is delivered before Restore returns.
func (s *Streams) Restore() {
	s.mu.Lock()
	restore := s.restore
	s.restore = nil
	s.mu.Unlock()
	for i := len(restore) - 1; i >= 0; i-- {
		restore[i]()
	}
}

// Len returns the number of active redirections.
func (s *Streams) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.restore)
}
