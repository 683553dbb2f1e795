package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"gcode-toolpath/pkg/errors"
	"gcode-toolpath/pkg/toolpath"
)

// jobEntry is one job held by the server. Its mutex serializes feeds and
// queries against the job; different entries proceed in parallel.
type jobEntry struct {
	mu      sync.Mutex
	id      string
	created time.Time
	stream  *toolpath.Stream
	closed  bool
}

// JobInfo is the JSON view of a held job.
type JobInfo struct {
	ID      string           `json:"id"`
	Created float64          `json:"created"`
	Closed  bool             `json:"closed"`
	Summary toolpath.Summary `json:"summary"`
}

func (e *jobEntry) info() JobInfo {
	return JobInfo{
		ID:      e.id,
		Created: float64(e.created.UnixMilli()) / 1000.0,
		Closed:  e.closed,
		Summary: e.stream.Job().Summary(),
	}
}

// feed writes a chunk of raw text. The trailing partial line stays
// buffered in the stream.
func (e *jobEntry) feed(text string) error {
	if e.closed {
		return errors.RequestError("job " + e.id + " is finished")
	}
	return e.stream.Write(text)
}

// feedLines executes lines already split by the caller.
func (e *jobEntry) feedLines(lines []string) error {
	if e.closed {
		return errors.RequestError("job " + e.id + " is finished")
	}
	return e.stream.WriteLines(lines)
}

func (e *jobEntry) finish() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.stream.Close()
}

// jobStore holds jobs by id, newest first.
type jobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*jobEntry
	order []string
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*jobEntry)}
}

// generateJobID generates a unique job ID.
func generateJobID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (js *jobStore) add(newJob func(id string) *toolpath.Job) *jobEntry {
	js.mu.Lock()
	defer js.mu.Unlock()

	id := generateJobID()
	for js.jobs[id] != nil {
		id = generateJobID()
	}
	e := &jobEntry{
		id:      id,
		created: time.Now(),
		stream:  toolpath.NewStream(newJob(id)),
	}
	js.jobs[id] = e
	js.order = append([]string{id}, js.order...)
	return e
}

func (js *jobStore) get(id string) (*jobEntry, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	e, ok := js.jobs[id]
	if !ok {
		return nil, errors.NotFoundError("job", id)
	}
	return e, nil
}

func (js *jobStore) remove(id string) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	if _, ok := js.jobs[id]; !ok {
		return errors.NotFoundError("job", id)
	}
	delete(js.jobs, id)
	for i, o := range js.order {
		if o == id {
			js.order = append(js.order[:i], js.order[i+1:]...)
			break
		}
	}
	return nil
}

func (js *jobStore) len() int {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return len(js.jobs)
}

// list returns the held entries, newest first.
func (js *jobStore) list() []*jobEntry {
	js.mu.RLock()
	defer js.mu.RUnlock()
	out := make([]*jobEntry, 0, len(js.order))
	for _, id := range js.order {
		out = append(out, js.jobs[id])
	}
	return out
}
