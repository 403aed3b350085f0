// Package sync owns the one authoritative portfolio document and keeps it
// consistent across the remote document store, a local cache file, and local
// mutations. Reads are remote-first with cache fallback; writes are
// conditional on the last-known version tag with a single conflict retry;
// corrupt remote content is self-healed back to an empty document.
//
// An Engine holds the remote file identity (id and version tag) as private
// mutable state. One Engine owns one cache path, and callers must not issue
// overlapping Load/Save calls against the same Engine; serialize mutations.
package sync

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/nsarvesh2011/gaino/internal/auth"
	"github.com/nsarvesh2011/gaino/internal/domain"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/rs/zerolog"
)

// FileName is the remote document name, resolved by exact match.
const FileName = "portfolio.json"

// Engine synchronizes the portfolio document.
type Engine struct {
	store     store.DocumentStore
	tokens    auth.TokenProvider
	cachePath string
	clientID  string
	log       zerolog.Logger

	// Remote identity, resolved per session. Written only by this engine's
	// own operations.
	fileID string
	etag   string
}

// New creates a sync engine. cachePath is the local cache file for the raw
// document bytes; clientID is stamped into lastModifiedByClient on saves.
func New(docs store.DocumentStore, tokens auth.TokenProvider, cachePath, clientID string, log zerolog.Logger) *Engine {
	return &Engine{
		store:     docs,
		tokens:    tokens,
		cachePath: cachePath,
		clientID:  clientID,
		log:       log.With().Str("engine", "sync").Logger(),
	}
}

// Load returns the current portfolio. It never fails outward: with a
// credential it prefers the remote document (creating it on first use and
// self-healing it when corrupt); without one, or when every remote step
// fails, it falls back to the local cache, and finally to an empty portfolio.
func (e *Engine) Load(ctx context.Context) domain.Portfolio {
	if _, ok := e.tokens.AccessToken(ctx); ok {
		if p, ok := e.loadRemote(ctx); ok {
			return p
		}
	} else {
		e.log.Warn().Msg("No credential; using cache")
	}
	return e.loadCache()
}

// loadRemote runs the remote read path. ok is false when the caller should
// fall back to the cache.
func (e *Engine) loadRemote(ctx context.Context) (domain.Portfolio, bool) {
	if err := e.resolveFileID(ctx); err != nil {
		e.log.Error().Err(err).Msg("Remote load failed")
		return domain.Portfolio{}, false
	}

	// Fetch the current version tag. Stores may omit it; absence is fine.
	if meta, err := e.store.GetMetadata(ctx, e.fileID); err == nil {
		e.etag = meta.VersionTag
		e.log.Debug().Str("etag", e.etag).Msg("Fetched version tag")
	}

	body, err := e.store.Download(ctx, e.fileID)
	if err != nil {
		e.log.Error().Err(err).Msg("Download failed")
		return domain.Portfolio{}, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.Portfolio{}, false
	}

	repaired := repair(body)
	p, err := domain.Decode(repaired)
	if err != nil {
		e.log.Error().Err(err).Msg("Remote JSON malformed; self-healing to empty portfolio")
		e.selfHeal(ctx)
		return domain.New(), true
	}

	e.writeCache(repaired)
	e.log.Debug().Int("holdings", len(p.Holdings)).Msg("Loaded (remote)")
	return p, true
}

// resolveFileID finds the remote document by name, creating it with an empty
// payload when none exists. The id is cached for the session.
func (e *Engine) resolveFileID(ctx context.Context) error {
	if e.fileID != "" {
		return nil
	}

	files, err := e.store.List(ctx, FileName)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		e.fileID = files[0].ID
		return nil
	}

	empty, err := domain.Encode(domain.New())
	if err != nil {
		return err
	}
	info, err := e.store.Create(ctx, FileName, empty)
	if err != nil {
		return err
	}
	e.fileID = info.ID
	e.writeCache(empty)
	e.log.Info().Str("id", e.fileID).Msg("Created remote document")
	return nil
}

// selfHeal overwrites the remote document unconditionally with a fresh empty
// portfolio. No version precondition is used: the remote content is presumed
// corrupt and not worth preserving, so last-write-wins. A failed heal is
// absorbed; the caller proceeds with an in-memory empty portfolio.
func (e *Engine) selfHeal(ctx context.Context) {
	empty, err := domain.Encode(domain.New())
	if err != nil {
		e.log.Error().Err(err).Msg("Self-heal failed")
		return
	}

	if _, err := e.store.Update(ctx, e.fileID, "", FileName, empty); err != nil {
		e.log.Error().Err(err).Msg("Self-heal failed; continuing with empty in-memory portfolio")
		return
	}

	if meta, err := e.store.GetMetadata(ctx, e.fileID); err == nil {
		e.etag = meta.VersionTag
	}
	e.writeCache(empty)
	e.log.Info().Str("etag", e.etag).Msg("Self-heal complete")
}

// loadCache reads the local cache file, repairing and parsing it with the
// same tolerance as the remote path. A malformed cache is reset to an empty
// document; a missing cache yields an empty portfolio.
func (e *Engine) loadCache() domain.Portfolio {
	cached, err := os.ReadFile(e.cachePath)
	if err != nil || len(bytes.TrimSpace(cached)) == 0 {
		return domain.New()
	}

	p, err := domain.Decode(repair(cached))
	if err != nil {
		e.log.Error().Err(err).Msg("Cache JSON malformed; resetting to empty")
		if empty, encErr := domain.Encode(domain.New()); encErr == nil {
			e.writeCache(empty)
		}
		return domain.New()
	}

	e.log.Debug().Int("holdings", len(p.Holdings)).Msg("Loaded (cache)")
	return p
}

// Save writes the portfolio to the remote store, conditional on the held
// version tag, retrying exactly once on a version conflict with a refreshed
// tag. It returns false without side effects when no credential or resolved
// file id is available, and on any terminal failure; the cache is advanced
// only after a confirmed remote write.
func (e *Engine) Save(ctx context.Context, p domain.Portfolio) bool {
	if _, ok := e.tokens.AccessToken(ctx); !ok {
		e.log.Warn().Msg("Save skipped: no credential")
		return false
	}
	if e.fileID == "" {
		e.log.Warn().Msg("Save skipped: no resolved file id")
		return false
	}

	p.LastModifiedAt = time.Now().UTC().Format(time.RFC3339)
	p.LastModifiedByClient = e.clientID

	data, err := domain.Encode(p)
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to serialize portfolio")
		return false
	}

	if _, err := e.store.Update(ctx, e.fileID, e.etag, FileName, data); err != nil {
		if !store.IsPreconditionFailed(err) {
			e.log.Error().Err(err).Str("etag", e.etag).Msg("Save failed")
			return false
		}
		return e.retryConflict(ctx, data)
	}

	e.refreshTag(ctx)
	e.writeCache(data)
	e.log.Debug().Str("etag", e.etag).Msg("Save success")
	return true
}

// retryConflict refreshes the version tag and retries the write once. A
// second conflict, or any other failure, is terminal: the cache and the
// caller's in-memory document stay untouched.
func (e *Engine) retryConflict(ctx context.Context, data []byte) bool {
	meta, err := e.store.GetMetadata(ctx, e.fileID)
	if err != nil {
		e.log.Error().Err(err).Msg("Conflict retry failed: could not refresh version tag")
		return false
	}
	e.etag = meta.VersionTag

	if _, err := e.store.Update(ctx, e.fileID, e.etag, FileName, data); err != nil {
		e.log.Error().Err(err).Str("etag", e.etag).Msg("Retry after version conflict failed")
		return false
	}

	e.refreshTag(ctx)
	e.writeCache(data)
	e.log.Debug().Str("etag", e.etag).Msg("Save success after retry")
	return true
}

// refreshTag re-reads metadata to pick up the tag of the write that just
// succeeded. Best effort: a failed read keeps the previous tag, which at
// worst costs one conflict retry on the next save.
func (e *Engine) refreshTag(ctx context.Context) {
	if meta, err := e.store.GetMetadata(ctx, e.fileID); err == nil {
		e.etag = meta.VersionTag
	}
}

// writeCache persists the raw document bytes. Cache failures are absorbed:
// the cache is an availability aid, never a correctness requirement.
func (e *Engine) writeCache(data []byte) {
	if err := os.WriteFile(e.cachePath, data, 0o600); err != nil {
		e.log.Warn().Err(err).Str("path", e.cachePath).Msg("Failed to write cache")
	}
}

// repair strips the trailing-comma-before-closing-bracket artifact left by
// earlier tooling. It is a narrow text-level sanitation step, deliberately
// not a lenient JSON parser.
func repair(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte(",]"), []byte("]"))
}
