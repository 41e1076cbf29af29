package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/intent"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/listing"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/remote/remotetest"
	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

var creds = smb.Credentials{Host: "nas", Share: "share", Username: "alice", Password: "hunter2"}

const mediaListing = " Volume in drive \\\\nas\\share is DATA\r\n" +
	" Volume Serial Number is 1A2B-3C4D\r\n" +
	"\r\n" +
	" Directory of \\\\nas\\share\\media\r\n" +
	"\r\n" +
	"15-11-2023  10:30    <DIR>          .\r\n" +
	"15-11-2023  10:30    <DIR>          ..\r\n" +
	"15-01-2023  10:30    <DIR>          album.jpg\r\n" +
	"01-01-2023  09:00             1,000 new year.jpg\r\n" +
	"31-01-2023  18:45             2,000 late.png\r\n" +
	"01-02-2023  08:00             3,000 february.jpg\r\n" +
	"20-01-2023  08:00               400 notes.txt\r\n" +
	"               4 File(s)          6,400 bytes\r\n" +
	"               3 Dir(s)  100,000,000 bytes free\r\n"

func newDispatcher(rules ...remotetest.Rule) (*Dispatcher, *remotetest.Recorder) {
	rec := remotetest.New(rules...)
	return New(smb.NewClient(rec)), rec
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	tests := []struct {
		action intent.Action
		path   string
	}{
		{intent.DeleteFolder{Path: "old_backup"}, "old_backup"},
		{intent.DeleteFile{Path: "notes.txt"}, "notes.txt"},
	}
	for _, tt := range tests {
		d, rec := newDispatcher()
		res, err := d.Dispatch(context.Background(), tt.action, creds, false)
		if err != nil {
			t.Fatalf("Dispatch(%#v): %v", tt.action, err)
		}
		if len(rec.Calls()) != 0 {
			t.Errorf("unconfirmed %s ran %v", tt.action.Kind(), rec.Calls())
		}
		if res.Message != ConfirmationPrompt(tt.path) || !strings.Contains(res.Message, tt.path) {
			t.Errorf("unexpected prompt %q", res.Message)
		}
	}
}

func TestConfirmedDeleteFolder(t *testing.T) {
	d, rec := newDispatcher()
	res, err := d.Dispatch(context.Background(), intent.DeleteFolder{Path: "old_backup"}, creds, true)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Message != "Successfully deleted folder old_backup" {
		t.Errorf("Message = %q", res.Message)
	}
	want := []string{"net use", "rmdir", "net use /delete"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestConfirmedDeleteFolderFailureStillDisconnects(t *testing.T) {
	d, rec := newDispatcher(remotetest.Rule{
		Match:  "rmdir",
		Result: remote.Result{ExitCode: 2, Stderr: "The system cannot find the file specified."},
	})
	_, err := d.Dispatch(context.Background(), intent.DeleteFolder{Path: "ghost"}, creds, true)

	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if de.Kind != KindRemote || de.Reason != "Failed to delete folder" {
		t.Errorf("got kind %s reason %q", de.Kind, de.Reason)
	}
	want := []string{"net use", "rmdir", "net use /delete"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageNeverTouchesShare(t *testing.T) {
	d, rec := newDispatcher()
	res, err := d.Dispatch(context.Background(), intent.Message{Text: intent.GreetingText}, smb.Credentials{}, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Message != intent.GreetingText || len(rec.Calls()) != 0 {
		t.Errorf("got %q with calls %v", res.Message, rec.Calls())
	}
}

func TestAuthenticationFailure(t *testing.T) {
	d, rec := newDispatcher(remotetest.Rule{
		Match:  "net use",
		Result: remote.Result{ExitCode: 2, Stderr: "System error 1326 has occurred."},
	})
	_, err := d.Dispatch(context.Background(), intent.List{}, creds, false)
	if KindOf(err) != KindAuthentication {
		t.Fatalf("KindOf(%v) = %q, want %q", err, KindOf(err), KindAuthentication)
	}
	if !errors.Is(err, smb.ErrAuthentication) {
		t.Errorf("error %v does not wrap ErrAuthentication", err)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("ran %v after a rejected connect", rec.Calls())
	}
}

func TestValidationHappensBeforeRemoteCalls(t *testing.T) {
	tests := []intent.Action{
		intent.DeleteFile{Path: ""},
		intent.DeleteFolder{Path: ""},
		intent.SearchFiles{Query: "  "},
		intent.Move{Source: "a"},
		intent.List{Path: "../secrets"},
		intent.CreateFolder{Path: "a|b"},
		intent.ListByType{Type: "spreadsheet"},
		intent.ListByDateRange{StartDate: "2023-1-1", EndDate: "2023-01-31"},
		intent.FindImages{Date: "yesterday"},
	}
	for _, a := range tests {
		d, rec := newDispatcher()
		_, err := d.Dispatch(context.Background(), a, creds, true)
		if KindOf(err) != KindValidation {
			t.Errorf("Dispatch(%#v) = %v, want validation error", a, err)
		}
		if len(rec.Calls()) != 0 {
			t.Errorf("Dispatch(%#v) ran %v", a, rec.Calls())
		}
	}
}

func TestList(t *testing.T) {
	d, rec := newDispatcher(remotetest.Rule{Match: "dir", Result: remote.Result{Stdout: mediaListing}})
	res, err := d.Dispatch(context.Background(), intent.List{Path: "media"}, creds, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Message != "Files in media:" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(res.Files) != 5 {
		t.Errorf("got %d files, want 5", len(res.Files))
	}
	want := []string{
		`net use \\nas\share hunter2 /user:alice`,
		`dir \\nas\share\media`,
		`net use \\nas\share /delete /y`,
	}
	if diff := cmp.Diff(want, rec.Calls()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestListByTypeSkipsDirectories(t *testing.T) {
	d, _ := newDispatcher(remotetest.Rule{Match: "dir", Result: remote.Result{Stdout: mediaListing}})
	res, err := d.Dispatch(context.Background(), intent.ListByType{Path: "media", Type: listing.Image}, creds, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Message != "Image files in media:" {
		t.Errorf("Message = %q", res.Message)
	}
	var names []string
	for _, f := range res.Files {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"new year.jpg", "late.png", "february.jpg"}, names); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestListByDateRange(t *testing.T) {
	d, _ := newDispatcher(remotetest.Rule{Match: "dir", Result: remote.Result{Stdout: mediaListing}})
	a := intent.ListByDateRange{Path: "media", StartDate: "2023-01-01", EndDate: "2023-01-31", Type: listing.Image}
	res, err := d.Dispatch(context.Background(), a, creds, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Message != "Image files in media from 2023-01-01 to 2023-01-31:" {
		t.Errorf("Message = %q", res.Message)
	}
	var names []string
	for _, f := range res.Files {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"new year.jpg", "late.png"}, names); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestFindImagesOnDate(t *testing.T) {
	d, rec := newDispatcher(remotetest.Rule{Match: "dir", Result: remote.Result{Stdout: mediaListing}})
	res, err := d.Dispatch(context.Background(), intent.FindImages{Date: "2023-02-01"}, creds, false)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Name != "february.jpg" {
		t.Errorf("unexpected files %+v", res.Files)
	}
	if got := rec.Calls()[1]; got != `dir \\nas\share` {
		t.Errorf("listed %q, want the share root", got)
	}
}

func TestCountAndSearch(t *testing.T) {
	d, _ := newDispatcher(
		remotetest.Rule{Match: "/a-d /b", Result: remote.Result{Stdout: "a.txt\r\nb.txt\r\nc.txt\r\n"}},
		remotetest.Rule{Match: "/s /b", Result: remote.Result{Stdout: "\\\\NAS\\share\\docs\\budget.xlsx\r\n\\\\nas\\share\\budget.txt\r\n"}},
	)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, intent.CountFiles{Path: "docs"}, creds, false)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if res.Message != "Found 3 files in docs" {
		t.Errorf("Message = %q", res.Message)
	}

	res, err = d.Dispatch(ctx, intent.SearchFiles{Query: "budget"}, creds, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []listing.FileEntry{
		{Name: "budget.xlsx", Path: `docs\budget.xlsx`},
		{Name: "budget.txt", Path: "budget.txt"},
	}
	if diff := cmp.Diff(want, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if res.Message != `Found 2 files matching "budget" in root` {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestCreateAndMove(t *testing.T) {
	d, rec := newDispatcher()
	ctx := context.Background()

	res, err := d.Dispatch(ctx, intent.CreateFolder{Path: "ai_test_folder"}, creds, false)
	if err != nil || res.Message != "Successfully created folder ai_test_folder" {
		t.Errorf("create: %v %+v", err, res)
	}
	res, err = d.Dispatch(ctx, intent.Move{Source: "report.pdf", Destination: "archive"}, creds, false)
	if err != nil || res.Message != "Successfully moved report.pdf to archive" {
		t.Errorf("move: %v %+v", err, res)
	}
	want := []string{"net use", "mkdir", "net use /delete", "net use", "move", "net use /delete"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestNeedsShare(t *testing.T) {
	tests := []struct {
		a         intent.Action
		confirmed bool
		want      bool
	}{
		{intent.Message{}, true, false},
		{intent.DeleteFile{Path: "x"}, false, false},
		{intent.DeleteFile{Path: "x"}, true, true},
		{intent.List{}, false, true},
		{intent.FindImages{}, false, true},
	}
	for _, tt := range tests {
		if got := NeedsShare(tt.a, tt.confirmed); got != tt.want {
			t.Errorf("NeedsShare(%#v, %v) = %v, want %v", tt.a, tt.confirmed, got, tt.want)
		}
	}
}
