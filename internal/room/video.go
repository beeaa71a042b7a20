package room

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/xid"
)

const videoIDLength = 11

var (
	youtubeURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)
	videoIDPattern    = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)
)

// IsYouTubeURL does a cheap shape check on a youtube.com / youtu.be link
func IsYouTubeURL(raw string) bool {
	return youtubeURLPattern.MatchString(raw)
}

// ExtractVideoID pulls the 11-character video id out of a YouTube link
func ExtractVideoID(raw string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(raw)
	if m == nil || len(m[2]) != videoIDLength {
		return "", false
	}
	return m[2], true
}

// NewRoomID returns a fresh opaque room token
func NewRoomID() string {
	return xid.New().String()
}

// ShareLink builds the join link: base + ?room=<roomID>
func ShareLink(base, roomID string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "?room=" + url.QueryEscape(roomID)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}
