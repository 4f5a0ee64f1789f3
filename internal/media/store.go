package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	downloadTimeout = 60 * time.Second

	// maxAttachmentSize bounds a single download. Discord caps uploads well
	// below this, so hitting it means something is wrong upstream.
	maxAttachmentSize = 100 << 20
)

// Attachment is the subset of a Discord attachment the store needs.
type Attachment struct {
	Name string
	URL  string
	Size int64
}

// Saved describes one archived attachment. Path is where the file landed on
// disk; DisplayPath is the same file as seen from the agent's workspace
// mount, which is what users and the agent should be told about.
type Saved struct {
	Name        string
	Path        string
	DisplayPath string
	Size        int64
}

// Store downloads message attachments into the media directory.
type Store struct {
	dir         string
	displayRoot string
	client      *http.Client
	logger      *slog.Logger

	now func() time.Time
}

func NewStore(dir, displayRoot string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:         dir,
		displayRoot: strings.TrimRight(displayRoot, "/"),
		client:      &http.Client{Timeout: downloadTimeout},
		logger:      logger,
		now:         time.Now,
	}
}

// DisplayRoot is the workspace-side location of the media directory.
func (s *Store) DisplayRoot() string {
	return s.displayRoot
}

// Save downloads one attachment and writes it atomically. The stored name is
// a timestamp prefix plus the sanitized original name, so repeated uploads of
// the same file never collide within a second.
func (s *Store) Save(ctx context.Context, att Attachment) (Saved, error) {
	name := s.now().Format("20060102_150405") + "_" + sanitizeName(att.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return Saved{}, fmt.Errorf("media: build download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Saved{}, fmt.Errorf("media: download %s: %w", att.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Saved{}, fmt.Errorf("media: download %s: status %d", att.Name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize))
	if err != nil {
		return Saved{}, fmt.Errorf("media: read %s: %w", att.Name, err)
	}

	filePath := path.Join(s.dir, name)
	if err := writeFileAtomic(filePath, data, 0o644); err != nil {
		return Saved{}, fmt.Errorf("media: save %s: %w", att.Name, err)
	}

	saved := Saved{
		Name:        att.Name,
		Path:        filePath,
		DisplayPath: path.Join(s.displayRoot, name),
		Size:        int64(len(data)),
	}
	s.logger.Info("attachment saved",
		"name", att.Name,
		"path", filePath,
		"size", humanize.Bytes(uint64(saved.Size)))
	return saved, nil
}

// SaveAll downloads every attachment, skipping ones that fail. Failures are
// logged but never abort the batch.
func (s *Store) SaveAll(ctx context.Context, atts []Attachment) []Saved {
	saved := make([]Saved, 0, len(atts))
	for _, att := range atts {
		out, err := s.Save(ctx, att)
		if err != nil {
			s.logger.Error("attachment save failed", "name", att.Name, "error", err)
			continue
		}
		saved = append(saved, out)
	}
	return saved
}

// Notice renders the channel message announcing what was archived and where
// the agent can find it.
func (s *Store) Notice(sender string, saved []Saved) string {
	var b strings.Builder
	b.WriteString("📁 **添付ファイルを保存しました**\n")
	fmt.Fprintf(&b, "⏰ %s\n", s.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "👤 送信者: %s\n", sender)
	fmt.Fprintf(&b, "📂 保存先: `%s`\n\n", s.displayRoot)
	for i, f := range saved {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, f.Name)
		fmt.Fprintf(&b, "   - ファイルパス: `%s`\n", f.DisplayPath)
		fmt.Fprintf(&b, "   - サイズ: %s\n", humanize.Bytes(uint64(f.Size)))
	}
	return b.String()
}

// writeFileAtomic stages the download in a temp file and renames it into
// place, so a crashed download never leaves a partial file in the media dir.
func writeFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, filePath)
}

// sanitizeName keeps stored names shell-friendly and path-safe.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		return "attachment"
	}
	return name
}
