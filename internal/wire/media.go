package wire

import (
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/matheus3301/omnisync/internal/crm"
)

var (
	imageExt = []string{"jpg", "jpeg", "png", "gif", "webp", "bmp"}
	videoExt = []string{"mp4", "avi", "mov", "webm", "mkv"}
	audioExt = []string{"mp3", "wav", "ogg", "aac", "m4a", "opus"}

	urlInText   = regexp.MustCompile(`https?://\S+`)
	fileURLExts = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp|mp4|avi|mov|webm|mkv|mp3|wav|ogg|aac|m4a|opus|pdf|doc|docx|xls|xlsx)$`)
)

// DetectMediaType classifies a link by its file extension. Anything not
// recognized is a document.
func DetectMediaType(link string) crm.MediaType {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(link), "."))
	switch {
	case slices.Contains(imageExt, ext):
		return crm.MediaImage
	case slices.Contains(videoExt, ext):
		return crm.MediaVideo
	case slices.Contains(audioExt, ext):
		return crm.MediaAudio
	}
	return crm.MediaDocument
}

// ResolveMedia builds the attachment of a message. link is the backend's
// link field (absolute or site relative), tag its declared type. Without a
// link, a file URL inside content counts as media. Returns nil for plain text.
func ResolveMedia(origin, tag, link, content string) *crm.Media {
	if link != "" {
		url := link
		if !strings.HasPrefix(link, "http") {
			url = strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(link, "/")
		}
		t := crm.MediaType(strings.ToLower(tag))
		if !t.Valid() {
			t = DetectMediaType(link)
		}
		return &crm.Media{Type: t, URL: url}
	}

	url := urlInText.FindString(content)
	if url == "" || !fileURLExts.MatchString(url) {
		return nil
	}
	return &crm.Media{Type: DetectMediaType(url), URL: url}
}
