package procrun

import (
	"bufio"
	"io"
	"iter"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// lineQueue is an unbounded FIFO of output lines filled by a pump and
// drained by the consumer.
type lineQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lines  []string
	closed bool
}

func newLineQueue() *lineQueue {
	q := &lineQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *lineQueue) push(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *lineQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until a line is available. ok is false once the queue is
// closed and empty.
func (q *lineQueue) pop() (line string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.lines) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.lines) == 0 {
		return "", false
	}
	line = q.lines[0]
	q.lines[0] = ""
	q.lines = q.lines[1:]
	return line, true
}

// All returns a single-use sequence over the queued lines.
func (q *lineQueue) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, ok := q.pop()
			if !ok || !yield(line) {
				return
			}
		}
	}
}

// pump reads r line by line, decoding with enc when set, until EOF.
func pump(r io.Reader, enc encoding.Encoding, q *lineQueue) {
	defer q.close()
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			q.push(strings.TrimRight(line, "\r\n"))
		}
		// EOF and read errors on a closed pipe both end the stream.
		if err != nil {
			return
		}
	}
}
