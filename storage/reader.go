package storage

import (
	"encoding/base64"
	"mime"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/brettbedarf/entryfs"
)

// defaultMIME is used for data URLs when neither the name nor the content
// identify a type
const defaultMIME = "application/octet-stream"

func (s *Storage) CreateReader(dir entryfs.Entry) entryfs.DirectoryReader {
	return &dirReader{s: s, dir: dir}
}

// dirReader implements the one-shot [entryfs.DirectoryReader]
type dirReader struct {
	s    *Storage
	dir  entryfs.Entry
	mu   sync.Mutex
	done bool
}

func (r *dirReader) ReadEntries(success func([]entryfs.Entry), fail func(error)) {
	const op = "readEntries"
	run(r.s, op, pathOf(r.dir), func() ([]entryfs.Entry, error) {
		en, err := r.s.own(op, r.dir)
		if err != nil {
			return nil, err
		}
		if en.kind != entryfs.DirectoryKind {
			return nil, entryfs.NewError(entryfs.TypeMismatch, op, en.path)
		}

		r.mu.Lock()
		done := r.done
		r.done = true
		r.mu.Unlock()
		if done {
			return []entryfs.Entry{}, nil
		}

		infos, err := r.s.backend.List(en.path)
		if err != nil {
			return nil, err
		}
		entries := make([]entryfs.Entry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, r.s.newEntry(Join(en.path, info.Name), info.Kind))
		}
		return entries, nil
	}, success, fail)
}

func (s *Storage) NewFileReader() entryfs.FileReader {
	return &fileReader{s: s}
}

// fileReader implements [entryfs.FileReader]
type fileReader struct {
	s         *Storage
	mu        sync.Mutex
	busy      bool
	aborted   bool
	onLoadEnd func(entryfs.ReadResult, error)
}

func (r *fileReader) OnLoadEnd(fn func(entryfs.ReadResult, error)) {
	r.mu.Lock()
	r.onLoadEnd = fn
	r.mu.Unlock()
}

func (r *fileReader) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		r.aborted = true
	}
}

func (r *fileReader) ReadAsText(f *entryfs.File) error {
	return r.read(entryfs.ReadText, f)
}

func (r *fileReader) ReadAsDataURL(f *entryfs.File) error {
	return r.read(entryfs.ReadDataURL, f)
}

func (r *fileReader) ReadAsArrayBuffer(f *entryfs.File) error {
	return r.read(entryfs.ReadArrayBuffer, f)
}

func (r *fileReader) ReadAsBinaryString(f *entryfs.File) error {
	return r.read(entryfs.ReadBinaryString, f)
}

func (r *fileReader) read(mode entryfs.ReadMode, f *entryfs.File) error {
	op := mode.Op()
	if f == nil {
		return entryfs.NewError(entryfs.TypeMismatch, op, "")
	}

	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return entryfs.NewError(entryfs.InvalidState, op, f.FullPath)
	}
	r.busy = true
	r.aborted = false
	r.mu.Unlock()

	task := func() {
		r.mu.Lock()
		aborted := r.aborted
		r.mu.Unlock()

		var res entryfs.ReadResult
		var err error
		if aborted {
			err = entryfs.NewError(entryfs.Aborted, op, f.FullPath)
		} else {
			res, err = encode(op, mode, f)
		}

		r.mu.Lock()
		r.busy = false
		r.aborted = false
		onEnd := r.onLoadEnd
		r.mu.Unlock()
		if onEnd != nil {
			onEnd(res, err)
		}
	}
	if !r.s.loop.Post(task) {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
		return entryfs.NewError(entryfs.InvalidState, op, f.FullPath)
	}
	return nil
}

func encode(op string, mode entryfs.ReadMode, f *entryfs.File) (entryfs.ReadResult, error) {
	res := entryfs.ReadResult{Mode: mode}
	switch mode {
	case entryfs.ReadText:
		if !utf8.Valid(f.Data) {
			return res, entryfs.NewError(entryfs.Encoding, op, f.FullPath)
		}
		res.Text = string(f.Data)
	case entryfs.ReadDataURL:
		res.Text = "data:" + dataURLType(f) + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
	case entryfs.ReadArrayBuffer:
		res.Bytes = append([]byte(nil), f.Data...)
	case entryfs.ReadBinaryString:
		var sb strings.Builder
		sb.Grow(len(f.Data))
		for _, b := range f.Data {
			sb.WriteRune(rune(b))
		}
		res.Text = sb.String()
	default:
		return res, entryfs.NewError(entryfs.Syntax, op, f.FullPath)
	}
	return res, nil
}

// typeByName returns the media type registered for the file extension
// without parameters, or "" if unknown
func typeByName(name string) string {
	t := mime.TypeByExtension(path.Ext(name))
	t, _, _ = strings.Cut(t, ";")
	return strings.TrimSpace(t)
}

// fileType returns the media type for a snapshot: the extension's registered
// type, else the sniffed content type, else "" for an empty file
func fileType(name string, data []byte) string {
	if t := typeByName(name); t != "" {
		return t
	}
	if len(data) == 0 {
		return ""
	}
	return sniff(data)
}

func sniff(data []byte) string {
	t, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(t)
}

// dataURLType prefers the snapshot's type and falls back to content sniffing
func dataURLType(f *entryfs.File) string {
	if f.Type != "" {
		return f.Type
	}
	if len(f.Data) == 0 {
		return defaultMIME
	}
	if t := sniff(f.Data); t != "" {
		return t
	}
	return defaultMIME
}
