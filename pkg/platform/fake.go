package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"tg-scraper/pkg/utils"
)

// Fake is an in-memory Client for tests. Channels, history and media are
// registered up front; access failures are injected with Deny. All methods
// are safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	channels []Channel // Insertion order, served by Channels()
	byRef    map[string]Channel
	history  map[int64][]Message // Newest-first, as the platform serves it
	denied   map[string]struct{}

	Downloads   []string // Destination paths of successful downloads
	DownloadErr error    // When set, DownloadMedia fails with it
}

// NewFake returns an empty Fake
func NewFake() *Fake {
	return &Fake{
		byRef:   make(map[string]Channel),
		history: make(map[int64][]Message),
		denied:  make(map[string]struct{}),
	}
}

// AddChannel registers a channel under its id (bare and -100 marked form),
// its username when present, and any extra refs.
func (f *Fake) AddChannel(ch Channel, refs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.channels = append(f.channels, ch)
	id := strconv.FormatInt(ch.ID, 10)
	f.byRef[id] = ch
	f.byRef["-100"+id] = ch
	if ch.Username != "" {
		f.byRef[ch.Username] = ch
		f.byRef["@"+ch.Username] = ch
	}
	for _, ref := range refs {
		f.byRef[ref] = ch
	}
}

// AddHistory appends messages to a channel's history. Callers list them
// newest-first to mirror platform order.
func (f *Fake) AddHistory(channelID int64, msgs ...Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[channelID] = append(f.history[channelID], msgs...)
}

// Deny makes ResolveChannel fail for the given ref with an access error
func (f *Fake) Deny(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[ref] = struct{}{}
}

// ResolveChannel implements the Client interface
func (f *Fake) ResolveChannel(ctx context.Context, ref string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return Channel{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, denied := f.denied[ref]; denied {
		return Channel{}, utils.WrapErrorf(utils.ErrPlatformAccess, "channel '%s'", ref)
	}
	ch, ok := f.byRef[ref]
	if !ok {
		return Channel{}, utils.WrapErrorf(utils.ErrPlatformAccess, "unknown channel '%s'", ref)
	}
	return ch, nil
}

// Message implements the Client interface
func (f *Fake) Message(ctx context.Context, ch Channel, msgID int) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.history[ch.ID] {
		if m.ID == msgID {
			msg := m
			return &msg, nil
		}
	}
	return nil, nil // Missing message, not an error
}

// DownloadMedia implements the Client interface
func (f *Fake) DownloadMedia(ctx context.Context, msg *Message, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	injected := f.DownloadErr
	f.mu.Unlock()
	if injected != nil {
		return "", injected
	}

	media, ok := msg.Media.(*FakeMedia)
	if !ok || media == nil {
		return "", fmt.Errorf("message %d carries no downloadable media", msg.ID)
	}

	path := filepath.Join(destDir, media.Filename)
	if err := os.WriteFile(path, media.Content, 0644); err != nil {
		return "", fmt.Errorf("%w: writing media file '%s': %w", utils.ErrFilesystem, path, err)
	}

	f.mu.Lock()
	f.Downloads = append(f.Downloads, path)
	f.mu.Unlock()
	return path, nil
}

// History implements the Client interface, yielding only URL-bearing
// messages in registration order.
func (f *Fake) History(ctx context.Context, ch Channel, visit func(msg Message) (bool, error)) error {
	f.mu.Lock()
	msgs := make([]Message, len(f.history[ch.ID]))
	copy(msgs, f.history[ch.ID])
	f.mu.Unlock()

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.Contains(m.Text, "http://") && !strings.Contains(m.Text, "https://") {
			continue
		}
		stop, err := visit(m)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// Channels implements the Client interface
func (f *Fake) Channels(ctx context.Context) ([]Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Channel, len(f.channels))
	copy(out, f.channels)
	return out, nil
}

// FakeMedia is the MediaRef implementation served by Fake
type FakeMedia struct {
	Filename string
	Content  []byte
}

// MediaKind implements the MediaRef interface
func (*FakeMedia) MediaKind() string { return "photo" }
