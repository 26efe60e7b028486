package core

import "errors"

var (
	// ErrItemNotFound signals a direct result removal on an entry that was
	// guaranteed to exist. Hitting it means a programming error, not bad
	// user input; the soft delete paths no-op instead of returning it.
	ErrItemNotFound = errors.New("item not found in list to play")

	// ErrEmptyUpstreamBatch rejects a fetched batch with zero items before
	// any merge happens. Surfaced to the caller as a fetch failure.
	ErrEmptyUpstreamBatch = errors.New("upstream batch contains no items")

	// ErrInvalidReorder rejects an out-of-range reorder index before
	// mutating anything.
	ErrInvalidReorder = errors.New("reorder index out of range")

	// ErrSourceNotFound rejects operations that require an existing source,
	// such as reordering items of an unknown playlist.
	ErrSourceNotFound = errors.New("source not found")
)
