// Package telegram adapts the gotd MTProto client to the platform
// capability interface. All channel resolution goes through a per-client
// cache so repeated post links into the same channel do not re-enumerate
// the account's chat list.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/utils"
)

// RPC error types that mean the account cannot see the channel, user, or
// message, as opposed to transient failures.
var accessDeniedTypes = []string{
	"CHANNEL_PRIVATE",
	"CHANNEL_INVALID",
	"CHAT_ADMIN_REQUIRED",
	"USERNAME_INVALID",
	"USERNAME_NOT_OCCUPIED",
	"PEER_ID_INVALID",
	"MSG_ID_INVALID",
}

func isAccessDenied(err error) bool {
	return tgerr.Is(err, accessDeniedTypes...)
}

// Client implements platform.Client on top of a connected gotd API client.
// It must be used inside the connection's Run callback.
type Client struct {
	api      *tg.Client
	dl       *downloader.Downloader
	log      *logrus.Logger
	pageSize int

	mu      sync.Mutex
	byID    map[int64]platform.Channel
	byName  map[string]platform.Channel
	all     []platform.Channel
	haveAll bool
}

// NewClient wraps a raw API client. historyPageSize bounds the messages
// requested per history page during channel walks.
func NewClient(api *tg.Client, historyPageSize int, log *logrus.Logger) *Client {
	if historyPageSize <= 0 {
		historyPageSize = 100
	}
	return &Client{
		api:      api,
		dl:       downloader.NewDownloader(),
		log:      log,
		pageSize: historyPageSize,
		byID:     make(map[int64]platform.Channel),
		byName:   make(map[string]platform.Channel),
	}
}

// NormalizeChannelRef interprets a channel reference from user input or a
// post link. Numeric refs return the bare channel id with any -100 marker
// stripped (t.me/c/ links carry the bare id, Bot API style ids the marked
// one); everything else is a username with optional @.
func NormalizeChannelRef(ref string) (int64, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, "", utils.WrapErrorf(utils.ErrInvalidLink, "empty channel reference")
	}
	if strings.HasPrefix(ref, "@") {
		name := strings.TrimPrefix(ref, "@")
		if name == "" {
			return 0, "", utils.WrapErrorf(utils.ErrInvalidLink, "'%s' has no username after @", ref)
		}
		return 0, name, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if marked, found := strings.CutPrefix(ref, "-100"); found && marked != "" {
			if bare, err := strconv.ParseInt(marked, 10, 64); err == nil && bare > 0 {
				return bare, "", nil
			}
		}
		if id <= 0 {
			return 0, "", utils.WrapErrorf(utils.ErrInvalidLink, "'%s' is not a valid channel id", ref)
		}
		return id, "", nil
	}
	// Bare channel name without @
	return 0, ref, nil
}

// ResolveChannel resolves a numeric id or username reference to a channel
// the account can access. Unknown and permission-denied channels come back
// wrapped in ErrPlatformAccess.
func (c *Client) ResolveChannel(ctx context.Context, ref string) (platform.Channel, error) {
	id, username, err := NormalizeChannelRef(ref)
	if err != nil {
		return platform.Channel{}, err
	}
	if username != "" {
		return c.resolveUsername(ctx, username)
	}
	return c.resolveID(ctx, id)
}

func (c *Client) resolveUsername(ctx context.Context, username string) (platform.Channel, error) {
	key := strings.ToLower(username)

	c.mu.Lock()
	if ch, ok := c.byName[key]; ok {
		c.mu.Unlock()
		return ch, nil
	}
	c.mu.Unlock()

	res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		if isAccessDenied(err) {
			return platform.Channel{}, fmt.Errorf("%w: resolving @%s: %w", utils.ErrPlatformAccess, username, err)
		}
		return platform.Channel{}, fmt.Errorf("resolving @%s: %w", username, err)
	}

	for _, chat := range res.Chats {
		tgCh, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		ch := channelFromTG(tgCh)
		c.remember(ch)
		return ch, nil
	}
	return platform.Channel{}, fmt.Errorf("%w: @%s is not a channel or group", utils.ErrPlatformAccess, username)
}

func (c *Client) resolveID(ctx context.Context, id int64) (platform.Channel, error) {
	c.mu.Lock()
	if ch, ok := c.byID[id]; ok {
		c.mu.Unlock()
		return ch, nil
	}
	c.mu.Unlock()

	// The bare id carries no access hash, so the only way to reach the
	// channel is through the account's own chat list.
	if err := c.ensureChannels(ctx); err != nil {
		return platform.Channel{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.byID[id]; ok {
		return ch, nil
	}
	return platform.Channel{}, fmt.Errorf("%w: channel %d is not among the account's chats", utils.ErrPlatformAccess, id)
}

func (c *Client) remember(ch platform.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[ch.ID] = ch
	if ch.Username != "" {
		c.byName[strings.ToLower(ch.Username)] = ch
	}
}

// ensureChannels populates the channel cache from the account's chat
// list. The lock is held across the fetch so concurrent resolvers share
// one request.
func (c *Client) ensureChannels(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveAll {
		return nil
	}

	res, err := c.api.MessagesGetAllChats(ctx, []int64{})
	if err != nil {
		return fmt.Errorf("listing account chats: %w", err)
	}

	var chats []tg.ChatClass
	switch v := res.(type) {
	case *tg.MessagesChats:
		chats = v.Chats
	case *tg.MessagesChatsSlice:
		chats = v.Chats
	default:
		return fmt.Errorf("unexpected chat list response %T", res)
	}

	for _, chat := range chats {
		tgCh, ok := chat.(*tg.Channel)
		if !ok || tgCh.Left {
			// Legacy small-group chats have no channel id; post links
			// cannot point into them
			continue
		}
		ch := channelFromTG(tgCh)
		c.byID[ch.ID] = ch
		if ch.Username != "" {
			c.byName[strings.ToLower(ch.Username)] = ch
		}
		c.all = append(c.all, ch)
	}
	c.haveAll = true
	c.log.Debugf("Cached %d channels from account chat list", len(c.all))
	return nil
}

// Channels lists every channel and supergroup the account is a member of.
func (c *Client) Channels(ctx context.Context) ([]platform.Channel, error) {
	if err := c.ensureChannels(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.Channel, len(c.all))
	copy(out, c.all)
	return out, nil
}

// Message fetches a single channel message. Deleted or never-sent ids
// yield (nil, nil).
func (c *Client) Message(ctx context.Context, ch platform.Channel, msgID int) (*platform.Message, error) {
	res, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.Hash},
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: msgID}},
	})
	if err != nil {
		if isAccessDenied(err) {
			return nil, fmt.Errorf("%w: fetching message %d from channel %d: %w", utils.ErrPlatformAccess, msgID, ch.ID, err)
		}
		return nil, fmt.Errorf("fetching message %d from channel %d: %w", msgID, ch.ID, err)
	}

	msgs, ok := res.(*tg.MessagesChannelMessages)
	if !ok {
		return nil, fmt.Errorf("unexpected message response %T", res)
	}
	for _, m := range msgs.Messages {
		full, ok := m.(*tg.Message)
		if !ok || full.ID != msgID {
			// Deleted messages come back as MessageEmpty
			continue
		}
		return convertMessage(full), nil
	}
	return nil, nil
}

// History iterates the channel's URL-bearing messages newest-first. The
// URL filter is applied server-side, so pages only contain messages worth
// classifying.
func (c *Client) History(ctx context.Context, ch platform.Channel, visit func(msg platform.Message) (stop bool, err error)) error {
	peer := &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.Hash}
	offsetID := 0

	for {
		res, err := c.api.MessagesSearch(ctx, &tg.MessagesSearchRequest{
			Peer:     peer,
			Filter:   &tg.InputMessagesFilterURL{},
			OffsetID: offsetID,
			Limit:    c.pageSize,
		})
		if err != nil {
			if isAccessDenied(err) {
				return fmt.Errorf("%w: walking history of channel %d: %w", utils.ErrPlatformAccess, ch.ID, err)
			}
			return fmt.Errorf("history page of channel %d (offset %d): %w", ch.ID, offsetID, err)
		}

		batch, err := searchMessages(res)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, m := range batch {
			offsetID = m.GetID()
			full, ok := m.(*tg.Message)
			if !ok {
				continue
			}
			stop, err := visit(*convertMessage(full))
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}

		// A short page means the filtered history is exhausted
		if len(batch) < c.pageSize {
			return nil
		}
	}
}

func searchMessages(res tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages, nil
	case *tg.MessagesMessagesSlice:
		return v.Messages, nil
	case *tg.MessagesChannelMessages:
		return v.Messages, nil
	default:
		return nil, fmt.Errorf("unexpected history response %T", res)
	}
}

func channelFromTG(ch *tg.Channel) platform.Channel {
	return platform.Channel{
		ID:       ch.ID,
		Hash:     ch.AccessHash,
		Title:    ch.Title,
		Username: ch.Username,
	}
}

func convertMessage(m *tg.Message) *platform.Message {
	msg := &platform.Message{ID: m.ID, Text: m.Message}
	if media, ok := m.GetMedia(); ok {
		if ref := newMediaRef(m.ID, media); ref != nil {
			msg.Media = ref
		}
	}
	return msg
}
