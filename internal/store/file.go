package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/model"
)

// FileStore writes each council's records as one JSON file per councillor:
//
//	<dir>/<council>/councillors/<identifier>-<name>.json
//	<dir>/<council>/issues.json
//	<dir>/run_log.jsonl
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, eris.New("file: output dir is required")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) councilDir(council string) string {
	return filepath.Join(s.dir, model.Slugify(council))
}

// Migrate creates the root directory.
func (s *FileStore) Migrate(_ context.Context) error {
	return eris.Wrap(os.MkdirAll(s.dir, 0o755), "file: create output dir")
}

func (s *FileStore) Close() error { return nil }

// SaveOutcome clears the council's councillor directory and rewrites it.
func (s *FileStore) SaveOutcome(_ context.Context, council string, records []model.Councillor, issues []model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.councilDir(council)
	recordDir := filepath.Join(base, "councillors")
	if err := os.RemoveAll(recordDir); err != nil {
		return eris.Wrapf(err, "file: clear %s", recordDir)
	}
	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		return eris.Wrapf(err, "file: create %s", recordDir)
	}

	used := make(map[string]struct{}, len(records))
	for _, c := range records {
		name := recordFileName(c, used)
		if err := writeJSON(filepath.Join(recordDir, name+".json"), c); err != nil {
			return err
		}
	}

	if issues == nil {
		issues = []model.Issue{}
	}
	return writeJSON(filepath.Join(base, "issues.json"), issues)
}

// recordFileName returns c.FileName(), suffixed with a digest of the URL
// when another record in the same save already claimed that name. Records
// are keyed by (identifier, url), so two records may share a slug.
func recordFileName(c model.Councillor, used map[string]struct{}) string {
	name := c.FileName()
	if _, taken := used[name]; taken {
		base := name + "-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.URL)).String()[:8]
		name = base
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s-%d", base, n)
		}
	}
	used[name] = struct{}{}
	return name
}

// Councillors reads back a council's records ordered by file name.
func (s *FileStore) Councillors(_ context.Context, council string) ([]model.Councillor, error) {
	recordDir := filepath.Join(s.councilDir(council), "councillors")
	entries, err := os.ReadDir(recordDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: read %s", recordDir)
	}

	var out []model.Councillor
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var c model.Councillor
		if err := readJSON(filepath.Join(recordDir, e.Name()), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *FileStore) Issues(_ context.Context, council string) ([]model.Issue, error) {
	var out []model.Issue
	err := readJSON(filepath.Join(s.councilDir(council), "issues.json"), &out)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

// RecordRun appends one line to run_log.jsonl.
func (s *FileStore) RecordRun(_ context.Context, e model.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "file: create output dir")
	}
	line, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "file: marshal run log entry")
	}

	f, err := os.OpenFile(filepath.Join(s.dir, "run_log.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "file: open run log")
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "file: append run log")
	}
	return nil
}

func (s *FileStore) readRunLog() ([]model.RunLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, "run_log.jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "file: open run log")
	}
	defer f.Close() //nolint:errcheck

	var out []model.RunLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var e model.RunLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, eris.Wrap(err, "file: decode run log line")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(scanner.Err(), "file: scan run log")
}

func (s *FileStore) LastRuns(_ context.Context) ([]model.RunLogEntry, error) {
	all, err := s.readRunLog()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]model.RunLogEntry)
	for _, e := range all {
		latest[e.Council] = e
	}
	out := make([]model.RunLogEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Council < out[j].Council })
	return out, nil
}

func (s *FileStore) Failing(ctx context.Context) ([]model.RunLogEntry, error) {
	last, err := s.LastRuns(ctx)
	if err != nil {
		return nil, err
	}
	return failingOf(last), nil
}

func (s *FileStore) RunsSince(_ context.Context, since time.Time) ([]model.RunLogEntry, error) {
	all, err := s.readRunLog()
	if err != nil {
		return nil, err
	}
	var out []model.RunLogEntry
	for _, e := range all {
		if !e.FinishedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "file: marshal %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "file: write %s", path)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "file: read %s", path)
	}
	return eris.Wrapf(json.Unmarshal(data, v), "file: decode %s", path)
}
