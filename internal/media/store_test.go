package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewStore(dir, "/workspace/media", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return s, dir
}

func TestSaveWritesTimestampedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	s, dir := testStore(t)
	saved, err := s.Save(context.Background(), Attachment{Name: "my photo.png", URL: srv.URL})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := "20250314_092653_my_photo.png"
	if filepath.Base(saved.Path) != want {
		t.Fatalf("stored name = %q, want %q", filepath.Base(saved.Path), want)
	}
	if saved.DisplayPath != "/workspace/media/"+want {
		t.Fatalf("display path = %q", saved.DisplayPath)
	}
	data, err := os.ReadFile(filepath.Join(dir, want))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("saved content = %q", data)
	}
	if saved.Size != int64(len("png-bytes")) {
		t.Fatalf("size = %d", saved.Size)
	}
}

func TestSaveRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s, dir := testStore(t)
	if _, err := s.Save(context.Background(), Attachment{Name: "x.bin", URL: srv.URL}); err == nil {
		t.Fatal("expected error for non-200 download")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files written, found %d", len(entries))
	}
}

func TestSaveAllSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s, _ := testStore(t)
	saved := s.SaveAll(context.Background(), []Attachment{
		{Name: "good.txt", URL: srv.URL + "/good"},
		{Name: "bad.txt", URL: srv.URL + "/bad"},
	})
	if len(saved) != 1 || saved[0].Name != "good.txt" {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestNoticeListsEveryFile(t *testing.T) {
	s, _ := testStore(t)
	notice := s.Notice("alice", []Saved{
		{Name: "a.png", DisplayPath: "/workspace/media/20250314_092653_a.png", Size: 2048},
		{Name: "b.pdf", DisplayPath: "/workspace/media/20250314_092653_b.pdf", Size: 10},
	})

	for _, want := range []string{
		"添付ファイルを保存しました",
		"👤 送信者: alice",
		"📂 保存先: `/workspace/media`",
		"**1. a.png**",
		"**2. b.pdf**",
		"`/workspace/media/20250314_092653_a.png`",
	} {
		if !strings.Contains(notice, want) {
			t.Fatalf("notice missing %q:\n%s", want, notice)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"a b.txt":   "a_b.txt",
		"../../etc": ".._.._etc",
		"":          "attachment",
		"plain.png": "plain.png",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
