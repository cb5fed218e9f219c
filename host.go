package livestorage

import "context"

// Host is the asynchronous key-value service the storage mirrors. Every method
// may be called from any goroutine.
type Host interface {
	// FetchAll returns every item currently stored in area.
	FetchAll(ctx context.Context, area Area) (map[string]any, error)
	Write(ctx context.Context, area Area, key string, value any) error
	Remove(ctx context.Context, area Area, key string) error
	// Subscribe registers handler for change notifications coming from any
	// context, including the caller's own writes. The returned func may be
	// nil when the host cannot detach a handler.
	Subscribe(handler ChangeHandler) (unsubscribe func())
}

// ChangeHandler receives one batch of changes reported for area.
type ChangeHandler func(batch ChangeBatch, area Area)
