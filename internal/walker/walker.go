// Package walker implements the two tree-traversal strategies from
// spec.md §4.4: a single-threaded DFS and a parallel BFS fanned out over a
// shared [workqueue.Queue]. Both record the same [Result]: the rewritten
// relative paths of every new regular file and symlink, plus a running byte
// total for files.
package walker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zenjabba/cephgeorep/internal/workqueue"
)

// Filter decides whether a directory entry should be skipped. Implemented by
// *filter.Filter.
type Filter interface {
	Ignore(path string, isSymlink bool) bool
}

// Result is the output of a walk: the list of new files (already
// snapshot-relative-rewritten) and their combined byte size.
type Result struct {
	Files      []string
	TotalBytes uint64
}

// formatPath rewrites an absolute path under root into the
// `<root>/./<relative>` form the configured syncer expects, so that a
// transfer executor invoked with --relative (or equivalent) preserves only
// the path beneath the snapshot root. filepath.Join cannot be used here: it
// calls Clean, which would collapse the literal "/./" this format depends
// on.
func formatPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("walker: rel(%q, %q): %w", root, path, err)
	}
	return root + string(filepath.Separator) + "." + string(filepath.Separator) + rel, nil
}

// WalkDFS recursively descends root (the snapshot path) single-threaded,
// matching spec.md's single-worker (W=1) mode. ctx is checked between
// recursion steps; a cancelled context aborts the walk without advancing
// the watermark (the caller is responsible for treating a returned
// ctx.Err() as "no successful cycle"). A directory that fails to read (e.g.
// permission denied) is logged and skipped; it costs only that subtree, not
// the rest of the walk.
func WalkDFS(ctx context.Context, root string, f Filter, logger *slog.Logger) (Result, error) {
	var res Result
	if err := walkDFS(ctx, root, root, f, logger, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func walkDFS(ctx context.Context, current, root string, f Filter, logger *slog.Logger, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(current)
	if err != nil {
		logger.Error("directory iteration failed, skipping subtree",
			slog.String("path", current), slog.Any("error", err))
		return nil
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(current, entry.Name())
		isSymlink := entry.Type()&os.ModeSymlink != 0
		if f.Ignore(path, isSymlink) {
			continue
		}
		switch {
		case entry.IsDir():
			if err := walkDFS(ctx, path, root, f, logger, res); err != nil {
				return err
			}
		case isSymlink:
			formatted, err := formatPath(root, path)
			if err != nil {
				return err
			}
			res.Files = append(res.Files, formatted)
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("walker: stat %q: %w", path, err)
			}
			res.TotalBytes += uint64(info.Size())
			formatted, err := formatPath(root, path)
			if err != nil {
				return err
			}
			res.Files = append(res.Files, formatted)
		default:
			logger.Debug("ignoring unknown file type", slog.String("path", path))
		}
	}
	return nil
}

// WalkBFS fans the same traversal out across workers goroutines sharing a
// FIFO work queue, matching spec.md's parallel (W>=2) mode. Termination is
// detected by the queue's quiescence protocol, not a fixed depth. A
// directory that fails to read is logged and skipped, costing only that
// subtree.
func WalkBFS(ctx context.Context, root string, workers int, f Filter, logger *slog.Logger) (Result, error) {
	if workers < 2 {
		return Result{}, fmt.Errorf("walker: WalkBFS requires at least 2 workers, got %d", workers)
	}

	q := workqueue.New(root)
	var (
		mu         sync.Mutex
		files      []string
		totalBytes uint64
	)

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				node, ok := q.Pop()
				if !ok {
					return nil
				}
				if err := processBFSNode(node, root, q, f, logger, &mu, &files, &totalBytes); err != nil {
					q.Done()
					return err
				}
				q.Done()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{Files: files, TotalBytes: totalBytes}, nil
}

func processBFSNode(node, root string, q *workqueue.Queue, f Filter, logger *slog.Logger, mu *sync.Mutex, files *[]string, totalBytes *uint64) error {
	info, err := os.Lstat(node)
	if err != nil {
		return fmt.Errorf("walker: lstat %q: %w", node, err)
	}

	switch {
	case info.IsDir():
		entries, err := os.ReadDir(node)
		if err != nil {
			logger.Error("directory iteration failed, skipping subtree",
				slog.String("path", node), slog.Any("error", err))
			return nil
		}
		for _, entry := range entries {
			path := filepath.Join(node, entry.Name())
			isSymlink := entry.Type()&os.ModeSymlink != 0
			if f.Ignore(path, isSymlink) {
				continue
			}
			q.Push(path)
		}
	case info.Mode()&os.ModeSymlink != 0:
		formatted, err := formatPath(root, node)
		if err != nil {
			return err
		}
		mu.Lock()
		*files = append(*files, formatted)
		mu.Unlock()
	case info.Mode().IsRegular():
		formatted, err := formatPath(root, node)
		if err != nil {
			return err
		}
		mu.Lock()
		*files = append(*files, formatted)
		*totalBytes += uint64(info.Size())
		mu.Unlock()
	default:
		logger.Debug("ignoring unknown file type", slog.String("path", node))
	}
	return nil
}
