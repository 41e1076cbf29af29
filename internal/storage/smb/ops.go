package smb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
)

// List returns the entries of a directory. Unparseable lines are dropped.
func (s *Session) List(ctx context.Context, dir string) ([]listing.FileEntry, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return nil, err
	}
	res, err := s.output(ctx, "list", builtin("dir", s.creds.Target(rel)))
	if err != nil {
		return nil, err
	}
	return listing.ParseListing(res.Stdout, rel), nil
}

// CountFiles counts the files (not directories) directly inside dir.
func (s *Session) CountFiles(ctx context.Context, dir string) (int, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return 0, err
	}
	res, err := s.output(ctx, "count", builtin("dir", s.creds.Target(rel), "/a-d", "/b"))
	if err != nil {
		// dir exits non-zero with "File Not Found" for an empty directory.
		if fileNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return listing.ParseCountOutput(res.Stdout), nil
}

// Search returns the full paths of files under dir whose names contain
// query, recursively.
func (s *Session) Search(ctx context.Context, dir, query string) ([]string, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return nil, err
	}
	q, err := CleanQuery(query)
	if err != nil {
		return nil, err
	}
	pattern := s.creds.Target(rel) + `\*` + q + `*`
	res, err := s.output(ctx, "search", builtin("dir", pattern, "/s", "/b", "/a-d"))
	if err != nil {
		if fileNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return listing.ParseSearchOutput(res.Stdout), nil
}

// Mkdir creates a directory.
func (s *Session) Mkdir(ctx context.Context, dir string) error {
	rel, err := nonRoot(dir)
	if err != nil {
		return err
	}
	return s.run(ctx, "mkdir", builtin("mkdir", s.creds.Target(rel)))
}

// Move moves or renames src to dst.
func (s *Session) Move(ctx context.Context, src, dst string) error {
	from, err := nonRoot(src)
	if err != nil {
		return err
	}
	to, err := CleanPath(dst)
	if err != nil {
		return err
	}
	return s.run(ctx, "move", builtin("move", s.creds.Target(from), s.creds.Target(to)))
}

// DeleteFile removes one file. del reports some failures (missing file,
// access denied) on stderr with a zero exit code, so any stderr output is
// treated as a failure.
func (s *Session) DeleteFile(ctx context.Context, file string) error {
	rel, err := nonRoot(file)
	if err != nil {
		return err
	}
	res, err := s.output(ctx, "delete file", builtin("del", "/f", "/q", s.creds.Target(rel)))
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Stderr) != "" {
		return &CommandError{Op: "delete file", Stderr: res.Stderr}
	}
	return nil
}

// DeleteDir removes a directory and everything below it.
func (s *Session) DeleteDir(ctx context.Context, dir string) error {
	rel, err := nonRoot(dir)
	if err != nil {
		return err
	}
	return s.run(ctx, "delete directory", builtin("rmdir", "/s", "/q", s.creds.Target(rel)))
}

// Download copies one file from the share to localPath, replacing it.
func (s *Session) Download(ctx context.Context, file, localPath string) error {
	rel, err := nonRoot(file)
	if err != nil {
		return err
	}
	return s.run(ctx, "download", builtin("copy", "/y", s.creds.Target(rel), localPath))
}

// Upload copies localPath into dir on the share as name, replacing any file
// of that name, and returns the share-relative path written.
func (s *Session) Upload(ctx context.Context, localPath, dir, name string) (string, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return "", err
	}
	n, err := CleanName(name)
	if err != nil {
		return "", err
	}
	dest := listing.JoinPath(rel, n)
	if err := s.run(ctx, "upload", builtin("copy", "/y", localPath, s.creds.Target(dest))); err != nil {
		return "", err
	}
	return dest, nil
}

// Walk lists root and every directory below it breadth-first, calling fn
// once per directory. Subdirectories that cannot be listed are logged and
// skipped; only a failure to list root is returned.
func (s *Session) Walk(ctx context.Context, root string, fn func(dir string, entries []listing.FileEntry)) error {
	rel, err := CleanPath(root)
	if err != nil {
		return err
	}
	queue := []string{rel}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := s.List(ctx, dir)
		if err != nil {
			if dir == rel {
				return err
			}
			logging.WithContext(ctx).Warn("skipping unreadable directory",
				zap.String("path", dir), zap.Error(err))
			continue
		}
		fn(dir, entries)
		for _, e := range entries {
			if e.IsDirectory {
				queue = append(queue, e.Path)
			}
		}
	}
	return nil
}

// Breakdown sums file sizes per category across the whole tree below root.
func (s *Session) Breakdown(ctx context.Context, root string) (map[listing.Category]uint64, error) {
	totals := listing.Breakdown(nil)
	err := s.Walk(ctx, root, func(_ string, entries []listing.FileEntry) {
		for c, n := range listing.Breakdown(entries) {
			totals[c] += n
		}
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func nonRoot(p string) (string, error) {
	rel, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", fmt.Errorf("%w: the share root cannot be the target", ErrInvalidPath)
	}
	return rel, nil
}

func fileNotFound(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && strings.Contains(ce.Stderr, "File Not Found")
}
