// Package media implements the MediaCache described in spec §4.4: turning a
// short-lived source media URL (typically a signed Discord CDN URL) into one
// that survives in persisted conversation history.
//
// Grounded on _examples/original_source/utils/media_cache.py's
// MediaCacheManager (load/save shape, cache_url algorithm, permanent-path
// classification, upload-service selection) and on the teacher's
// internal/sessions/manager.go for the single-lock-guards-everything and
// dirty-flag-plus-periodic-flush idiom.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/discordctx/internal/mediaupload"
	"github.com/nextlevelbuilder/discordctx/internal/model"
	"github.com/nextlevelbuilder/discordctx/internal/storage"
)

// Fetcher downloads the bytes at a source URL. ok is false for any non-200
// response, signalling the caller to degrade gracefully (§4.4 step 3).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, ok bool, err error)
}

// permanentPathSubstrings marks CDN paths eligible for permanent storage,
// matching the original's permanent_patterns list exactly.
var permanentPathSubstrings = []string{
	"discordapp.com/avatars/",
	"discordapp.com/icons/",
	"discordapp.com/banners/",
	"discordapp.com/splashes/",
	"discordapp.com/emojis/",
}

func isPermanentCandidate(cleanURL string) bool {
	for _, s := range permanentPathSubstrings {
		if strings.Contains(cleanURL, s) {
			return true
		}
	}
	return false
}

// IsDiscordCDNURL reports whether u points at a Discord-hosted CDN asset
// subject to expiry, used by ValidateAndUpdateURL to choose its strategy.
func IsDiscordCDNURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	return strings.Contains(host, "discordapp.com") || strings.Contains(host, "discordapp.net") || strings.Contains(host, "discord.com")
}

// Cache is the MediaCache (§4.4). All state access is guarded by a single
// mutex; the design trades contention for simplicity since upload latency
// dominates.
type Cache struct {
	mu sync.Mutex

	store *storage.Store
	path  string

	fetcher   Fetcher
	permanent []mediaupload.Service
	temporary []mediaupload.Service

	file   model.MediaCacheFile
	loaded bool
	dirty  bool
}

// New creates a MediaCache persisted at path, using fetcher to download
// source bytes and permanent/temporary as the priority-ordered upload
// service lists (§4.4 configuration).
func New(store *storage.Store, path string, fetcher Fetcher, permanent, temporary []mediaupload.Service) *Cache {
	return &Cache{store: store, path: path, fetcher: fetcher, permanent: permanent, temporary: temporary}
}

func (c *Cache) ensureLoaded() {
	if c.loaded {
		return
	}
	c.store.Read(c.path, &c.file)
	if c.file.MediaEntries == nil {
		c.file.MediaEntries = make(map[string]*model.MediaCacheEntry)
	}
	if c.file.URLToHash == nil {
		c.file.URLToHash = make(map[string]string)
	}
	// Purge already-expired entries on load, matching the original's
	// startup behaviour.
	now := time.Now().Unix()
	for hash, e := range c.file.MediaEntries {
		if e.ExpiryTimestamp != 0 && e.ExpiryTimestamp <= now {
			delete(c.file.MediaEntries, hash)
			for _, known := range e.KnownURLs {
				delete(c.file.URLToHash, known)
			}
		}
	}
	c.loaded = true
}

func cleanURL(raw string) string {
	return strings.SplitN(raw, "?", 2)[0]
}

func filenameFrom(cleanedURL string) string {
	base := path.Base(cleanedURL)
	if base == "" || base == "." || base == "/" {
		return "file"
	}
	return base
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func shuffle(services []mediaupload.Service) []mediaupload.Service {
	out := append([]mediaupload.Service(nil), services...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// eligibleServices picks the service list for a candidate per §4.4 step 6:
// permanent candidates try permanent services, falling back to temporary
// only when no permanent service is configured. Everything else defaults
// to temporary.
func (c *Cache) eligibleServices(permanentCandidate bool) []mediaupload.Service {
	if permanentCandidate && len(c.permanent) > 0 {
		return c.permanent
	}
	return c.temporary
}

// CacheURL runs the full §4.4 cache_url algorithm.
func (c *Cache) CacheURL(ctx context.Context, rawURL string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	clean := cleanURL(rawURL)

	// Fast path.
	if hash, ok := c.file.URLToHash[clean]; ok {
		if entry, ok := c.file.MediaEntries[hash]; ok {
			if entry.ExpiryTimestamp == 0 || entry.ExpiryTimestamp > time.Now().Unix() {
				return entry.URL
			}
		}
	}

	correlationID := uuid.New().String()

	data, ok, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil || !ok {
		slog.Warn("media: download failed, keeping source url", "url", rawURL, "error", err, "correlation_id", correlationID)
		return rawURL
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	// Medium path.
	if entry, ok := c.file.MediaEntries[hash]; ok {
		entry.KnownURLs = appendUnique(entry.KnownURLs, clean)
		c.file.URLToHash[clean] = hash
		c.dirty = true
		return entry.URL
	}

	// Slow path: upload via the first eligible service that succeeds.
	candidates := shuffle(c.eligibleServices(isPermanentCandidate(clean)))
	filename := filenameFrom(clean)
	for _, svc := range candidates {
		uploadedURL, expiry, err := svc.Upload(ctx, filename, data)
		if err != nil {
			slog.Warn("media: upload attempt failed", "service", svc.Name(), "error", err, "correlation_id", correlationID)
			continue
		}
		c.file.MediaEntries[hash] = &model.MediaCacheEntry{
			URL:             uploadedURL,
			ExpiryTimestamp: expiry,
			KnownURLs:       []string{clean},
		}
		c.file.URLToHash[clean] = hash
		c.dirty = true
		return uploadedURL
	}

	slog.Warn("media: all upload services failed, keeping source url", "url", rawURL, "correlation_id", correlationID)
	return rawURL
}

// ValidateAndUpdateURL re-uploads Discord CDN URLs (since their source token
// may have rotated or the entry may be missing) and, for non-Discord URLs,
// checks the stored expiry. It reports the filename to use for an expired
// placeholder when the URL can no longer be served (§4.4).
func (c *Cache) ValidateAndUpdateURL(ctx context.Context, u string) (validURL string, expiredFilename string) {
	if IsDiscordCDNURL(u) {
		return c.CacheURL(ctx, u), ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()

	clean := cleanURL(u)
	entry := c.file.MediaEntries[c.file.URLToHash[clean]]
	if entry == nil {
		// History stores the uploaded URL, so also match an entry by its own URL.
		for _, e := range c.file.MediaEntries {
			if e.URL == u {
				entry = e
				break
			}
		}
	}
	if entry == nil {
		return u, ""
	}
	if entry.ExpiryTimestamp != 0 && entry.ExpiryTimestamp <= time.Now().Unix() {
		return "", filenameFrom(clean)
	}
	return entry.URL, ""
}

// Flush persists the cache if it has unsaved changes.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := c.store.Write(c.path, c.file); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ForceFlush persists the cache unconditionally, used on shutdown (§4.4 step 8).
func (c *Cache) ForceFlush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded()
	if err := c.store.Write(c.path, c.file); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// RunPeriodicFlush flushes the cache every interval until ctx is cancelled,
// matching the original's 30-second background save loop.
func (c *Cache) RunPeriodicFlush(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				slog.Error("media: periodic flush failed", "error", err)
			}
		}
	}
}

// DefaultFlushInterval matches the original implementation's SAVE_INTERVAL_SECONDS.
const DefaultFlushInterval = 30 * time.Second
