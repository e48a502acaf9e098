package config

// Tuning holds the engine parameters applied by optimize.
type Tuning struct {
	JournalMode string
	Synchronous string
	// CacheSize follows SQLite semantics: negative values are KiB, positive
	// values are pages.
	CacheSize  int
	TempStore  string
	MmapSize   int64
	PageSize   int
	AutoVacuum string
}

// DefaultTuning returns WAL journaling with NORMAL sync, a ~10 MB page cache,
// in-memory temp tables, a 256 MB mmap window, 4 KiB pages and incremental
// auto-vacuum.
func DefaultTuning() Tuning {
	return Tuning{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSize:   -10000,
		TempStore:   "MEMORY",
		MmapSize:    268435456,
		PageSize:    4096,
		AutoVacuum:  "INCREMENTAL",
	}
}

// LoadTuning overlays tuning.* settings on DefaultTuning.
func LoadTuning(loader *Loader) Tuning {
	t := DefaultTuning()
	if loader == nil {
		return t
	}

	t.JournalMode = loader.String("tuning.journal_mode", t.JournalMode)
	t.Synchronous = loader.String("tuning.synchronous", t.Synchronous)
	t.CacheSize = loader.Int("tuning.cache_size", t.CacheSize)
	t.TempStore = loader.String("tuning.temp_store", t.TempStore)
	t.MmapSize = loader.Int64("tuning.mmap_size", t.MmapSize)
	t.PageSize = loader.Int("tuning.page_size", t.PageSize)
	t.AutoVacuum = loader.String("tuning.auto_vacuum", t.AutoVacuum)

	return t
}
