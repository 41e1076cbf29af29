// Package dispatch executes parsed actions against a share and renders a
// uniform chat result.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/metrics"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

// Result is the outcome of one action, whatever its kind.
type Result struct {
	Message string              `json:"message"`
	Files   []listing.FileEntry `json:"files,omitempty"`
}

// ConfirmationPrompt is returned instead of deleting when the request was
// not confirmed.
func ConfirmationPrompt(path string) string {
	return fmt.Sprintf("Are you sure you want to delete %s? This action cannot be undone. "+
		"Send the request again with confirmDelete set to true to proceed.", path)
}

// Dispatcher runs actions. Each call opens its own share session.
type Dispatcher struct {
	client *smb.Client
}

// New returns a Dispatcher that reaches shares through client.
func New(client *smb.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// NeedsShare reports whether dispatching a with the given confirmation
// state touches the share, and therefore needs credentials.
func NeedsShare(a intent.Action, confirmed bool) bool {
	switch a.(type) {
	case intent.Message:
		return false
	case intent.DeleteFile, intent.DeleteFolder:
		return confirmed
	}
	return true
}

// op is one primary remote operation, run inside a session.
type op func(ctx context.Context, s *smb.Session) (*Result, error)

// Dispatch executes a. Deletes run only when confirmed; otherwise the
// confirmation prompt is returned and the share is never contacted. The
// session is released on every path, and a release failure never replaces
// the operation's result.
func (d *Dispatcher) Dispatch(ctx context.Context, a intent.Action, creds smb.Credentials, confirmed bool) (*Result, error) {
	start := time.Now()
	res, outcome, err := d.dispatch(ctx, a, creds, confirmed)
	metrics.RecordDispatch(string(a.Kind()), outcome, time.Since(start))
	if err != nil {
		logging.WithContext(ctx).Warn("dispatch failed",
			zap.String("action", string(a.Kind())),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
	}
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, a intent.Action, creds smb.Credentials, confirmed bool) (*Result, string, error) {
	var run op
	switch a := a.(type) {
	case intent.Message:
		return &Result{Message: a.Text}, "ok", nil
	case intent.DeleteFile:
		if a.Path == "" {
			return nil, "error", Validation("Please specify which file to delete")
		}
		if !confirmed {
			return &Result{Message: ConfirmationPrompt(a.Path)}, "awaiting_confirmation", nil
		}
		run = deleteFile(a)
	case intent.DeleteFolder:
		if a.Path == "" {
			return nil, "error", Validation("Please specify which folder to delete")
		}
		if !confirmed {
			return &Result{Message: ConfirmationPrompt(a.Path)}, "awaiting_confirmation", nil
		}
		run = deleteFolder(a)
	case intent.List:
		run = list(a)
	case intent.CountFiles:
		run = countFiles(a)
	case intent.CreateFolder:
		if a.Path == "" {
			return nil, "error", Validation("Please specify a folder name")
		}
		run = createFolder(a)
	case intent.Move:
		if a.Source == "" || a.Destination == "" {
			return nil, "error", Validation(intent.MoveHelpText)
		}
		run = move(a)
	case intent.SearchFiles:
		if strings.TrimSpace(a.Query) == "" {
			return nil, "error", Validation("Please specify what to search for")
		}
		run = searchFiles(a, creds)
	case intent.ListByType:
		if _, ok := listing.ParseCategory(string(a.Type)); !ok {
			return nil, "error", Validation(fmt.Sprintf("Unknown file type %q", a.Type))
		}
		run = listByType(a)
	case intent.ListByDateRange:
		if !listing.IsISODate(a.StartDate) || !listing.IsISODate(a.EndDate) {
			return nil, "error", Validation("Dates must be in YYYY-MM-DD format")
		}
		if a.Type != "" {
			if _, ok := listing.ParseCategory(string(a.Type)); !ok {
				return nil, "error", Validation(fmt.Sprintf("Unknown file type %q", a.Type))
			}
		}
		run = listByDateRange(a)
	case intent.FindImages:
		if a.Date != "" && !listing.IsISODate(a.Date) {
			return nil, "error", Validation("Dates must be in YYYY-MM-DD format")
		}
		run = findImages(a)
	default:
		return nil, "error", Validation(fmt.Sprintf("Unsupported action %q", a.Kind()))
	}

	if err := checkInputs(a); err != nil {
		return nil, "error", err
	}

	var res *Result
	err := d.client.WithSession(ctx, creds, func(s *smb.Session) error {
		var err error
		res, err = run(ctx, s)
		return err
	})
	if err != nil {
		return nil, "error", wrap("Share operation failed", err)
	}
	return res, "ok", nil
}

func list(a intent.List) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		files, err := s.List(ctx, a.Path)
		if err != nil {
			return nil, wrap("Failed to list files", err)
		}
		return &Result{Message: fmt.Sprintf("Files in %s:", where(a.Path)), Files: files}, nil
	}
}

func countFiles(a intent.CountFiles) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		n, err := s.CountFiles(ctx, a.Path)
		if err != nil {
			return nil, wrap("Failed to count files", err)
		}
		return &Result{Message: fmt.Sprintf("Found %d files in %s", n, where(a.Path))}, nil
	}
}

func createFolder(a intent.CreateFolder) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		if err := s.Mkdir(ctx, a.Path); err != nil {
			return nil, wrap("Failed to create folder", err)
		}
		return &Result{Message: fmt.Sprintf("Successfully created folder %s", a.Path)}, nil
	}
}

func deleteFile(a intent.DeleteFile) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		if err := s.DeleteFile(ctx, a.Path); err != nil {
			return nil, wrap("Failed to delete file", err)
		}
		return &Result{Message: fmt.Sprintf("Successfully deleted file %s", a.Path)}, nil
	}
}

func deleteFolder(a intent.DeleteFolder) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		if err := s.DeleteDir(ctx, a.Path); err != nil {
			return nil, wrap("Failed to delete folder", err)
		}
		return &Result{Message: fmt.Sprintf("Successfully deleted folder %s", a.Path)}, nil
	}
}

func move(a intent.Move) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		if err := s.Move(ctx, a.Source, a.Destination); err != nil {
			return nil, wrap("Failed to move", err)
		}
		return &Result{Message: fmt.Sprintf("Successfully moved %s to %s", a.Source, a.Destination)}, nil
	}
}

func searchFiles(a intent.SearchFiles, creds smb.Credentials) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		found, err := s.Search(ctx, a.Path, a.Query)
		if err != nil {
			return nil, wrap("Search failed", err)
		}
		files := make([]listing.FileEntry, 0, len(found))
		for _, p := range found {
			files = append(files, searchEntry(creds, p))
		}
		return &Result{
			Message: fmt.Sprintf("Found %d files matching %q in %s", len(files), a.Query, where(a.Path)),
			Files:   files,
		}, nil
	}
}

func listByType(a intent.ListByType) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		entries, err := s.List(ctx, a.Path)
		if err != nil {
			return nil, wrap("Failed to list files", err)
		}
		files := listing.FilterByCategory(listing.FilesOnly(entries), a.Type)
		return &Result{
			Message: fmt.Sprintf("%s files in %s:", title(string(a.Type)), where(a.Path)),
			Files:   files,
		}, nil
	}
}

func listByDateRange(a intent.ListByDateRange) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		entries, err := s.List(ctx, a.Path)
		if err != nil {
			return nil, wrap("Failed to list files", err)
		}
		files := listing.FilesOnly(entries)
		label := "Files"
		if a.Type != "" {
			files = listing.FilterByCategory(files, a.Type)
			label = title(string(a.Type)) + " files"
		}
		files = listing.FilterByDateRange(files, a.StartDate, a.EndDate)
		return &Result{
			Message: fmt.Sprintf("%s in %s from %s to %s:", label, where(a.Path), a.StartDate, a.EndDate),
			Files:   files,
		}, nil
	}
}

func findImages(a intent.FindImages) op {
	return func(ctx context.Context, s *smb.Session) (*Result, error) {
		entries, err := s.List(ctx, "")
		if err != nil {
			return nil, wrap("Failed to list files", err)
		}
		files := listing.FilterByCategory(listing.FilesOnly(entries), listing.Image)
		if a.Date == "" {
			return &Result{Message: "Images in root:", Files: files}, nil
		}
		files = listing.FilterByDateRange(files, a.Date, a.Date)
		return &Result{Message: fmt.Sprintf("Images from %s:", a.Date), Files: files}, nil
	}
}

// checkInputs rejects unusable paths and queries before the share is
// contacted.
func checkInputs(a intent.Action) error {
	var paths []string
	switch a := a.(type) {
	case intent.List:
		paths = []string{a.Path}
	case intent.CountFiles:
		paths = []string{a.Path}
	case intent.CreateFolder:
		paths = []string{a.Path}
	case intent.DeleteFile:
		paths = []string{a.Path}
	case intent.DeleteFolder:
		paths = []string{a.Path}
	case intent.Move:
		paths = []string{a.Source, a.Destination}
	case intent.SearchFiles:
		if _, err := smb.CleanQuery(a.Query); err != nil {
			return &Error{Kind: KindValidation, Reason: "Invalid search query", Err: err}
		}
		paths = []string{a.Path}
	case intent.ListByType:
		paths = []string{a.Path}
	case intent.ListByDateRange:
		paths = []string{a.Path}
	}
	for _, p := range paths {
		if _, err := smb.CleanPath(p); err != nil {
			return &Error{Kind: KindValidation, Reason: "Invalid path", Err: err}
		}
	}
	return nil
}

// searchEntry turns a full UNC path reported by a recursive search into a
// share-relative file entry.
func searchEntry(creds smb.Credentials, full string) listing.FileEntry {
	rel := full
	prefix := creds.UNC() + `\`
	if len(full) >= len(prefix) && strings.EqualFold(full[:len(prefix)], prefix) {
		rel = full[len(prefix):]
	}
	name := rel
	if i := strings.LastIndex(rel, `\`); i >= 0 {
		name = rel[i+1:]
	}
	return listing.FileEntry{Name: name, Path: rel}
}

func where(path string) string {
	if path == "" {
		return "root"
	}
	return path
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
