package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/tg"

	"tg-scraper/pkg/platform"
	"tg-scraper/pkg/utils"
)

// mediaRef carries the concrete photo or document behind a message's
// media handle. Exactly one of the two fields is set.
type mediaRef struct {
	msgID    int
	photo    *tg.Photo
	document *tg.Document
}

func (r *mediaRef) MediaKind() string {
	if r.photo != nil {
		return "photo"
	}
	return "document"
}

// newMediaRef extracts downloadable media from a message. Webpage
// previews, polls, geo points and similar attachments have no file to
// save and yield nil, which callers treat as a media-less message.
func newMediaRef(msgID int, media tg.MessageMediaClass) *mediaRef {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := m.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := p.(*tg.Photo)
		if !ok {
			return nil
		}
		return &mediaRef{msgID: msgID, photo: photo}
	case *tg.MessageMediaDocument:
		d, ok := m.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := d.(*tg.Document)
		if !ok {
			return nil
		}
		return &mediaRef{msgID: msgID, document: doc}
	}
	return nil
}

// location builds the download location and target filename for the media.
func (r *mediaRef) location() (tg.InputFileLocationClass, string, error) {
	if r.photo != nil {
		sizeType := largestPhotoSize(r.photo.Sizes)
		if sizeType == "" {
			return nil, "", fmt.Errorf("photo %d carries no downloadable sizes", r.photo.ID)
		}
		loc := &tg.InputPhotoFileLocation{
			ID:            r.photo.ID,
			AccessHash:    r.photo.AccessHash,
			FileReference: r.photo.FileReference,
			ThumbSize:     sizeType,
		}
		return loc, fmt.Sprintf("photo_%d.jpg", r.msgID), nil
	}

	loc := &tg.InputDocumentFileLocation{
		ID:            r.document.ID,
		AccessHash:    r.document.AccessHash,
		FileReference: r.document.FileReference,
	}
	return loc, documentFilename(r.document, r.msgID), nil
}

// largestPhotoSize returns the size type with the biggest pixel area.
// Stripped, cached and path sizes are inline thumbnails, not fetchable
// files, so they are ignored.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	best := ""
	bestArea := -1
	for _, s := range sizes {
		switch size := s.(type) {
		case *tg.PhotoSize:
			if area := size.W * size.H; area > bestArea {
				bestArea, best = area, size.Type
			}
		case *tg.PhotoSizeProgressive:
			if area := size.W * size.H; area > bestArea {
				bestArea, best = area, size.Type
			}
		}
	}
	return best
}

// docExtByMime maps the media MIME types commonly seen on messages to a
// filename extension. Fixed here so fallback names do not vary with the
// host's mime tables.
var docExtByMime = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
}

// documentFilename prefers the sender-supplied filename, falling back to
// doc_<msgID> with an extension derived from the MIME type.
func documentFilename(doc *tg.Document, msgID int) string {
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok && fn.FileName != "" {
			return utils.SanitizeFilename(fn.FileName)
		}
	}
	name := fmt.Sprintf("doc_%d", msgID)
	if ext, ok := docExtByMime[doc.MimeType]; ok {
		name += ext
	}
	return name
}

// DownloadMedia saves the message's attached media into destDir and
// returns the written path. Partial files from failed downloads are
// removed.
func (c *Client) DownloadMedia(ctx context.Context, msg *platform.Message, destDir string) (string, error) {
	ref, ok := msg.Media.(*mediaRef)
	if !ok {
		return "", fmt.Errorf("media handle %T was not produced by this client", msg.Media)
	}

	loc, name, err := ref.location()
	if err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, name)
	if _, err := c.dl.Download(c.api, loc).ToPath(ctx, destPath); err != nil {
		os.Remove(destPath)
		if isAccessDenied(err) {
			return "", fmt.Errorf("%w: downloading %s media of message %d: %w", utils.ErrPlatformAccess, ref.MediaKind(), ref.msgID, err)
		}
		return "", fmt.Errorf("downloading %s media of message %d: %w", ref.MediaKind(), ref.msgID, err)
	}
	return destPath, nil
}
