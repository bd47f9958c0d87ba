package store

import (
	"govetachun/snkv/pager"
)

// Config holds every open-time option.
type Config struct {
	PageSize      int // power of two in [pager.MinPageSize, pager.MaxPageSize]; ignored reopening an existing file
	CacheSize     int // advisory page-cache budget; informational
	SyncLevel     SyncLevel
	JournalMode   JournalMode
	ReadOnly      bool
	BusyTimeoutMs int   // 0 disables busy retry entirely
	WALSizeLimit  int64 // committed write transactions between auto-checkpoints; 0 disables it
	Clock         Clock // defaults to the system clock
}

// SyncLevel mirrors pager.SyncLevel at the store's public surface so callers
// never need to import pager directly.
type SyncLevel = pager.SyncLevel

const (
	SyncOff    = pager.SyncOff
	SyncNormal = pager.SyncNormal
	SyncFull   = pager.SyncFull
)

// JournalMode mirrors pager.JournalMode.
type JournalMode = pager.JournalMode

const (
	JournalDelete = pager.JournalDelete
	JournalWAL    = pager.JournalWAL
)

// CheckpointMode mirrors pager.CheckpointMode.
type CheckpointMode = pager.CheckpointMode

const (
	CheckpointPassive  = pager.CheckpointPassive
	CheckpointFull     = pager.CheckpointFull
	CheckpointRestart  = pager.CheckpointRestart
	CheckpointTruncate = pager.CheckpointTruncate
)

const (
	defaultPageSize  = 4096
	defaultCacheSize = 2000
)

// normalize fills in defaults and validates the configuration, returning a
// StatusInvalidArgument error describing the first problem found.
// busy_timeout_ms defaults to 0 (fail immediately on contention) and
// wal_size_limit defaults to 0 (auto-checkpoint disabled); neither is
// silently replaced with a nonzero value the caller never asked for.
// JournalWAL is the zero value of JournalMode, so a caller who never
// touches that field already gets WAL mode for free.
func (c Config) normalize() (Config, error) {
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.CacheSize == 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.PageSize < pager.MinPageSize || c.PageSize > pager.MaxPageSize || c.PageSize&(c.PageSize-1) != 0 {
		return c, newErr(StatusInvalidArgument, "page_size must be a power of two in range", nil)
	}
	if c.BusyTimeoutMs < 0 {
		return c, newErr(StatusInvalidArgument, "busy_timeout_ms must be >= 0", nil)
	}
	if c.WALSizeLimit < 0 {
		return c, newErr(StatusInvalidArgument, "wal_size_limit must be >= 0", nil)
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	return c, nil
}

func (c Config) toPagerOptions() pager.Options {
	return pager.Options{
		PageSize:      c.PageSize,
		CacheSize:     c.CacheSize,
		SyncLevel:     c.SyncLevel,
		JournalMode:   c.JournalMode,
		ReadOnly:      c.ReadOnly,
		BusyTimeoutMs: c.BusyTimeoutMs,
	}
}
