// Package harness runs the storage smoke test: it resolves a root, runs the
// dependent main chain of file operations and the best-effort side chains,
// and reports every step.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/brettbedarf/entryfs"
	"github.com/brettbedarf/entryfs/config"
	"github.com/brettbedarf/entryfs/internal/journal"
	"github.com/brettbedarf/entryfs/internal/util"
	"github.com/brettbedarf/entryfs/mkdir"
	"github.com/brettbedarf/entryfs/pipeline"
)

// Chain names used in step results
const (
	SetupChain    = "setup"
	MainChain     = "main"
	DownloadChain = "download"
	ListingChain  = "listing"
)

var (
	// ErrContentMismatch is returned when a file does not hold the written bytes
	ErrContentMismatch = errors.New("content mismatch")
	// ErrMisplaced is returned when a moved entry is not found under its destination
	ErrMisplaced = errors.New("entry misplaced")
)

// Session holds everything a run needs. Collaborators are passed in
// explicitly; a Session has no global state.
type Session struct {
	cfg      *config.Config
	resolver entryfs.RootResolver
	transfer entryfs.Transfer
	journal  *journal.Journal
}

type Option func(*Session)

// WithJournal records every run in j
func WithJournal(j *journal.Journal) Option {
	return func(s *Session) { s.journal = j }
}

// NewSession creates a session. transfer may be nil, which skips the download.
func NewSession(cfg *config.Config, resolver entryfs.RootResolver, transfer entryfs.Transfer, opts ...Option) *Session {
	s := &Session{cfg: cfg, resolver: resolver, transfer: transfer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one smoke test. The returned error is the main chain's
// failure; side chain failures only appear in the report.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), RootURL: s.cfg.RootURL, StartedAt: time.Now()}
	logger := util.GetLogger("Session.Run")
	logger.Info().Str("run", rep.RunID).Str("root", s.cfg.RootURL).Msg("Starting run")

	var root entryfs.StorageRoot
	results, err := pipeline.NewChain(SetupChain).
		Then("resolve-root", func(ctx context.Context) (err error) {
			root, err = pipeline.ResolveRoot(ctx, s.resolver, s.cfg.RootURL)
			return err
		}).
		Run(ctx)
	rep.Steps = append(rep.Steps, results...)
	if err != nil {
		return s.finish(ctx, rep, err)
	}

	var side pipeline.SideChains
	side.Go(ctx, s.downloadChain(root))
	side.Go(ctx, s.listingChain(root))

	results, err = s.mainChain(root).Run(ctx)
	rep.Steps = append(rep.Steps, results...)

	sideResults, sideErr := side.Wait()
	rep.Steps = append(rep.Steps, sideResults...)
	rep.SideErr = sideErr
	if sideErr != nil {
		logger.Warn().Err(sideErr).Msg("Side chains reported failures")
	}
	return s.finish(ctx, rep, err)
}

func (s *Session) finish(ctx context.Context, rep *Report, err error) (*Report, error) {
	logger := util.GetLogger("Session.Run")
	rep.Err = err
	rep.Duration = time.Since(rep.StartedAt)
	if err != nil {
		logger.Error().Err(err).Str("run", rep.RunID).Dur("took", rep.Duration).Msg("Run failed")
	} else {
		logger.Info().Str("run", rep.RunID).Dur("took", rep.Duration).Msg("Run passed")
	}

	if s.journal != nil {
		// a cancelled run is still recorded
		if jErr := s.journal.Record(context.WithoutCancel(ctx), rep.Record()); jErr != nil {
			logger.Warn().Err(jErr).Str("run", rep.RunID).Msg("Failed to record run")
		}
	}
	return rep, err
}

// downloadChain ensures the nested directory exists and downloads into it
func (s *Session) downloadChain(root entryfs.StorageRoot) *pipeline.Chain {
	cfg := s.cfg
	var dir entryfs.Entry
	c := pipeline.NewChain(DownloadChain).
		Then("ensure-dir", func(ctx context.Context) (err error) {
			dir, err = mkdir.EnsureDirectory(ctx, root, cfg.RecursiveDir)
			return err
		})
	if cfg.DownloadURL == "" || s.transfer == nil {
		return c
	}
	return c.Then("download", func(ctx context.Context) error {
		target := path.Join(dir.FullPath(), cfg.DownloadName)
		file, err := pipeline.Await(ctx, "download", func(ok func(entryfs.Entry), fail func(error)) {
			s.transfer.Download(ctx, cfg.DownloadURL, root, target, ok, fail)
		})
		if err != nil {
			return err
		}
		logger := util.GetLogger("Session.download")
		logger.Info().Str("url", file.URL()).Msg("Downloaded")
		return nil
	})
}

// listingChain logs the entries at the root
func (s *Session) listingChain(root entryfs.StorageRoot) *pipeline.Chain {
	return pipeline.NewChain(ListingChain).
		Then("read-entries", func(ctx context.Context) error {
			logger := util.GetLogger("Session.listing")
			entries, err := pipeline.ReadEntries(ctx, root.Storage, root.Root())
			if err != nil {
				return err
			}
			for _, e := range entries {
				logger.Info().Str("kind", e.Kind().String()).Str("name", e.Name()).Msg("Root entry")
			}
			logger.Debug().Int("count", len(entries)).Msg("Listed root")
			return nil
		})
}

// mainChain builds the dependent chain of file operations. Every step
// consumes handles produced by earlier steps.
func (s *Session) mainChain(root entryfs.StorageRoot) *pipeline.Chain {
	cfg := s.cfg
	st := root.Storage
	content := []byte(cfg.Content)

	var (
		dir, file, copied entryfs.Entry
		w                 entryfs.Writer
	)
	c := pipeline.NewChain(MainChain).
		Then("get-dir", func(ctx context.Context) (err error) {
			dir, err = pipeline.GetDirectory(ctx, st, root.Root(), cfg.TestDir, entryfs.CreateOptions{Create: true})
			return err
		}).
		Then("get-file", func(ctx context.Context) (err error) {
			file, err = pipeline.GetFile(ctx, st, dir, cfg.FileName, entryfs.CreateOptions{Create: true})
			return err
		}).
		Then("create-writer", func(ctx context.Context) (err error) {
			w, err = pipeline.CreateWriter(ctx, st, file)
			return err
		}).
		Then("write", func(ctx context.Context) error {
			// a file left by an earlier run is emptied first
			if w.Length() > 0 {
				if err := pipeline.Truncate(ctx, w, 0); err != nil {
					return err
				}
			}
			if err := pipeline.Write(ctx, w, content); err != nil {
				return err
			}
			md, err := pipeline.GetMetadata(ctx, st, file)
			if err != nil {
				return err
			}
			if md.Size != int64(len(content)) {
				return fmt.Errorf("%w: %s holds %d bytes after write, want %d", ErrContentMismatch, file.FullPath(), md.Size, len(content))
			}
			logger := util.GetLogger("Session.write")
			logger.Debug().Str("file", file.FullPath()).
				Str("size", humanize.Bytes(uint64(md.Size))).Msg("Wrote content")
			return nil
		}).
		Then("copy", func(ctx context.Context) (err error) {
			if err := removeStale(ctx, st, dir, cfg.CopyName); err != nil {
				return err
			}
			copied, err = pipeline.CopyTo(ctx, st, file, dir, cfg.CopyName)
			return err
		}).
		Then("move", func(ctx context.Context) error {
			src := file
			if cfg.MoveSource == config.MoveCopy {
				src = copied
			}
			if err := removeStale(ctx, st, dir, cfg.MoveName); err != nil {
				return err
			}
			moved, err := pipeline.MoveTo(ctx, st, src, dir, cfg.MoveName)
			if err != nil {
				return err
			}
			parent, err := pipeline.GetParent(ctx, st, moved)
			if err != nil {
				return err
			}
			if parent.FullPath() != dir.FullPath() {
				return fmt.Errorf("%w: %s moved under %s, want %s", ErrMisplaced, moved.FullPath(), parent.FullPath(), dir.FullPath())
			}
			return nil
		}).
		Then("read", func(ctx context.Context) error {
			return s.verifyReads(ctx, st, dir, content)
		}).
		Then("truncate", func(ctx context.Context) error {
			return s.verifyTruncate(ctx, st, dir, content)
		})

	if cfg.Cleanup {
		c = c.Then("cleanup", func(ctx context.Context) error {
			return pipeline.RemoveRecursively(ctx, st, dir)
		})
	}
	return c
}

// removeStale removes a file named name left in dir by an earlier run, so
// copy and move never target an existing path
func removeStale(ctx context.Context, st entryfs.Storage, dir entryfs.Entry, name string) error {
	stale, err := pipeline.GetFile(ctx, st, dir, name, entryfs.CreateOptions{})
	if entryfs.IsKind(err, entryfs.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	logger := util.GetLogger("Session.removeStale")
	logger.Debug().Str("file", stale.FullPath()).Msg("Removing file from earlier run")
	return pipeline.Remove(ctx, st, stale)
}

// verifyReads re-resolves the moved file and reads it in every mode
func (s *Session) verifyReads(ctx context.Context, st entryfs.Storage, dir entryfs.Entry, want []byte) error {
	logger := util.GetLogger("Session.read")
	moved, err := pipeline.GetFile(ctx, st, dir, s.cfg.MoveName, entryfs.CreateOptions{})
	if err != nil {
		return err
	}
	snap, err := pipeline.File(ctx, st, moved)
	if err != nil {
		return err
	}
	for _, mode := range []entryfs.ReadMode{entryfs.ReadText, entryfs.ReadDataURL, entryfs.ReadArrayBuffer, entryfs.ReadBinaryString} {
		res, err := pipeline.Read(ctx, st, snap, mode)
		if err != nil {
			return err
		}
		got, err := res.Content()
		if err != nil {
			return err
		}
		if !bytes.Equal(got, want) {
			return fmt.Errorf("%w: %s of %s returned %q, want %q", ErrContentMismatch, mode.Op(), moved.FullPath(), got, want)
		}
		logger.Debug().Str("mode", mode.String()).Str("file", moved.FullPath()).Msg("Read verified")
	}
	return nil
}

// verifyTruncate truncates the moved file and checks the remaining prefix
func (s *Session) verifyTruncate(ctx context.Context, st entryfs.Storage, dir entryfs.Entry, content []byte) error {
	moved, err := pipeline.GetFile(ctx, st, dir, s.cfg.MoveName, entryfs.CreateOptions{})
	if err != nil {
		return err
	}
	w, err := pipeline.CreateWriter(ctx, st, moved)
	if err != nil {
		return err
	}
	if err := pipeline.Truncate(ctx, w, s.cfg.TruncateLength); err != nil {
		return err
	}

	want := make([]byte, s.cfg.TruncateLength)
	copy(want, content)
	snap, err := pipeline.File(ctx, st, moved)
	if err != nil {
		return err
	}
	if !bytes.Equal(snap.Data, want) {
		return fmt.Errorf("%w: %s truncated to %d holds %q, want %q", ErrContentMismatch, moved.FullPath(), s.cfg.TruncateLength, snap.Data, want)
	}
	return nil
}
