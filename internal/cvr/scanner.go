package cvr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/zjrosen/cvrexport/internal/cachemanager"
	"github.com/zjrosen/cvrexport/internal/log"
)

// DefaultPatterns match the files a CVR export folder normally holds.
var DefaultPatterns = []string{"CvrExport*.json", "*.zip"}

// Summary describes the candidate CVR files directly inside a folder.
type Summary struct {
	Folder string
	Files  int
	Bytes  int64
	Newest time.Time
}

// Scanner counts candidate CVR files in a folder. Results are cached per
// folder for ttl and dropped by Invalidate when the folder changes.
type Scanner struct {
	patterns []string
	globs    []glob.Glob
	ttl      time.Duration
	cache    *cachemanager.ReadThroughCache[string, Summary, string]
}

// NewScanner compiles patterns (case-insensitive, matched against base
// names). A zero ttl disables caching.
func NewScanner(patterns []string, ttl time.Duration) (*Scanner, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	s := &Scanner{patterns: patterns, ttl: ttl}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		s.globs = append(s.globs, g)
	}
	store := cachemanager.NewInMemoryCacheManager[string, Summary]("cvr-scan",
		cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	s.cache = cachemanager.NewReadThroughCache[string, Summary, string](store, s.scan, ttl <= 0)
	return s, nil
}

// Patterns returns the configured patterns.
func (s *Scanner) Patterns() []string {
	return s.patterns
}

// Matches reports whether a file name looks like a CVR file.
func (s *Scanner) Matches(name string) bool {
	lower := strings.ToLower(name)
	for _, g := range s.globs {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// Scan summarises folder, using the cache when possible.
func (s *Scanner) Scan(ctx context.Context, folder string) (Summary, error) {
	return s.cache.Get(ctx, folder, folder, s.ttl)
}

// Invalidate forgets the cached summary for folder.
func (s *Scanner) Invalidate(ctx context.Context, folder string) {
	s.cache.Invalidate(ctx, folder)
}

func (s *Scanner) scan(ctx context.Context, folder string) (Summary, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return Summary{}, fmt.Errorf("scan %s: %w", folder, err)
	}

	sum := Summary{Folder: folder}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		if e.IsDir() || !s.Matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		sum.Files++
		sum.Bytes += info.Size()
		if info.ModTime().After(sum.Newest) {
			sum.Newest = info.ModTime()
		}
	}
	log.Debug(log.CatCache, "Scanned folder", "folder", folder, "files", sum.Files)
	return sum, nil
}
