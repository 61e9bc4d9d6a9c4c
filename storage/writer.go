package storage

import (
	"sync"

	"github.com/brettbedarf/entryfs"
)

func (s *Storage) CreateWriter(file entryfs.Entry, success func(entryfs.Writer), fail func(error)) {
	const op = "createWriter"
	run(s, op, pathOf(file), func() (entryfs.Writer, error) {
		en, err := s.own(op, file)
		if err != nil {
			return nil, err
		}
		if en.kind != entryfs.FileKind {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, en.path)
		}
		info, err := s.stat(op, en)
		if err != nil {
			return nil, err
		}
		return &writer{s: s, path: en.path, length: info.Size}, nil
	}, success, fail)
}

// writer implements [entryfs.Writer]. Only one write or truncate may be in
// flight; its events fire on the storage loop.
type writer struct {
	s    *Storage
	path string

	mu       sync.Mutex
	position int64
	length   int64
	busy     bool
	aborted  bool

	onWriteStart func()
	onWrite      func()
	onError      func(error)
	onWriteEnd   func(error)
}

func (w *writer) Position() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

func (w *writer) Length() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.length
}

func (w *writer) OnWriteStart(fn func()) {
	w.mu.Lock()
	w.onWriteStart = fn
	w.mu.Unlock()
}

func (w *writer) OnWrite(fn func()) {
	w.mu.Lock()
	w.onWrite = fn
	w.mu.Unlock()
}

func (w *writer) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

func (w *writer) OnWriteEnd(fn func(error)) {
	w.mu.Lock()
	w.onWriteEnd = fn
	w.mu.Unlock()
}

func (w *writer) Seek(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return entryfs.NewError(entryfs.InvalidState, "seek", w.path)
	}
	switch {
	case offset < 0:
		w.position = max(w.length+offset, 0)
	case offset > w.length:
		w.position = w.length
	default:
		w.position = offset
	}
	return nil
}

// Abort cancels the in-flight operation before it touches the backend.
// No-op when idle.
func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		w.aborted = true
	}
}

func (w *writer) Write(data []byte) error {
	const op = "write"
	buf := append([]byte(nil), data...)
	return w.start(op, func(pos int64) (int64, int64, error) {
		n, err := w.s.backend.WriteAt(w.path, pos, buf)
		return pos + int64(len(buf)), n, err
	})
}

func (w *writer) Truncate(size int64) error {
	const op = "truncate"
	if size < 0 {
		return entryfs.NewError(entryfs.InvalidModification, op, w.path)
	}
	return w.start(op, func(pos int64) (int64, int64, error) {
		if err := w.s.backend.Truncate(w.path, size); err != nil {
			return 0, 0, err
		}
		return min(pos, size), size, nil
	})
}

// start marks the writer busy and queues fn, which returns the new
// position and length
func (w *writer) start(op string, fn func(pos int64) (int64, int64, error)) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return entryfs.NewError(entryfs.InvalidState, op, w.path)
	}
	w.busy = true
	w.aborted = false
	w.mu.Unlock()

	task := func() {
		w.mu.Lock()
		onStart := w.onWriteStart
		w.mu.Unlock()
		if onStart != nil {
			onStart()
		}

		w.mu.Lock()
		aborted := w.aborted
		pos := w.position
		w.mu.Unlock()

		var err error
		if aborted {
			err = entryfs.NewError(entryfs.Aborted, op, w.path)
		} else {
			var newPos, newLen int64
			newPos, newLen, err = fn(pos)
			if err == nil {
				w.mu.Lock()
				w.position, w.length = newPos, newLen
				w.mu.Unlock()
			} else {
				err = entryfs.AsOperationError(err, op, w.path)
			}
		}
		w.finish(err)
	}
	if !w.s.loop.Post(task) {
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
		return entryfs.NewError(entryfs.InvalidState, op, w.path)
	}
	return nil
}

// finish clears the busy state then fires write/error and writeend,
// so a writeend handler may start the next operation
func (w *writer) finish(err error) {
	w.mu.Lock()
	w.busy = false
	w.aborted = false
	onWrite, onError, onEnd := w.onWrite, w.onError, w.onWriteEnd
	w.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else if onWrite != nil {
		onWrite()
	}
	if onEnd != nil {
		onEnd(err)
	}
}
