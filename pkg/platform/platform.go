// Package platform defines the capability surface the crawl engine needs
// from the messaging platform. The production implementation lives in
// pkg/telegram; tests substitute Fake.
package platform

import "context"

// Channel identifies one channel or group the account can access.
type Channel struct {
	ID       int64  // Bare numeric id, as it appears in t.me/c/ links
	Hash     int64  // Access hash the platform requires alongside the id
	Title    string
	Username string // Public username, empty for private channels
}

// Message is one message out of a channel's history.
type Message struct {
	ID    int
	Text  string
	Media MediaRef // nil when the message carries no media
}

// MediaRef is an opaque handle to a message's attached media. Concrete
// values are produced by the Client implementation that yielded the
// Message and consumed back by its DownloadMedia.
type MediaRef interface {
	// MediaKind names the media type for logging ("photo", "document")
	MediaKind() string
}

// Client is the messaging-platform collaborator. Implementations wrap
// access and permission failures in utils.ErrPlatformAccess so callers
// can treat them uniformly as skips.
type Client interface {
	// ResolveChannel resolves a channel reference: a bare numeric id
	// (with or without the -100 marker) or a @username.
	ResolveChannel(ctx context.Context, ref string) (Channel, error)

	// Message fetches a single message by id. A nil message with a nil
	// error means the message does not exist (deleted or never sent).
	Message(ctx context.Context, ch Channel, msgID int) (*Message, error)

	// DownloadMedia saves the message's attached media into destDir and
	// returns the path of the written file.
	DownloadMedia(ctx context.Context, msg *Message, destDir string) (string, error)

	// History iterates the channel's URL-bearing messages newest-first,
	// calling visit for each. Iteration ends when visit returns stop=true,
	// an error, or the history is exhausted.
	History(ctx context.Context, ch Channel, visit func(msg Message) (stop bool, err error)) error

	// Channels lists every channel and group the account has access to.
	Channels(ctx context.Context) ([]Channel, error)
}
