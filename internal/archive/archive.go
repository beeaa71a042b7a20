package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/rx3lixir/watchparty/internal/room"
)

const (
	// TranscriptLimit caps how many of the latest messages go into an export
	TranscriptLimit = room.MaxMessageLimit

	// URLExpiry is how long a transcript download link stays valid
	URLExpiry = time.Hour
)

// ObjectStore is the part of *minio.Client the archiver uses
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Transcript is the JSON document written to the bucket
type Transcript struct {
	Room       room.Room      `json:"room"`
	VideoID    string         `json:"video_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Messages   []room.Message `json:"messages"`
}

// Export describes an uploaded transcript
type Export struct {
	Object       string `json:"object"`
	URL          string `json:"url"`
	MessageCount int    `json:"message_count"`
	Size         int64  `json:"size"`
}

// Archiver uploads chat transcripts to S3-compatible storage
type Archiver struct {
	objects ObjectStore
	bucket  string
	rooms   room.Store
	now     func() time.Time
	log     *slog.Logger
}

func NewArchiver(objects ObjectStore, bucket string, rooms room.Store, log *slog.Logger) *Archiver {
	return &Archiver{
		objects: objects,
		bucket:  bucket,
		rooms:   rooms,
		now:     time.Now,
		log:     log,
	}
}

// ObjectName builds the key a transcript of roomID exported at t is stored under
func ObjectName(roomID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf(
		"transcripts/%d/%02d/%02d/%s-%d.json",
		t.Year(),
		t.Month(),
		t.Day(),
		roomID,
		t.Unix(),
	)
}

// ExportRoom writes the room's latest messages to the bucket and returns a
// presigned download link
func (a *Archiver) ExportRoom(ctx context.Context, roomID string) (*Export, error) {
	r, err := a.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	messages, err := a.rooms.ListMessages(ctx, roomID, TranscriptLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	now := a.now()
	videoID, _ := room.ExtractVideoID(r.VideoURL)
	t := Transcript{
		Room:       *r,
		VideoID:    videoID,
		ExportedAt: now.UTC(),
		Messages:   make([]room.Message, 0, len(messages)),
	}
	for _, m := range messages {
		t.Messages = append(t.Messages, *m)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	objectName := ObjectName(roomID, now)
	_, err = a.objects.PutObject(
		ctx,
		a.bucket,
		objectName,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"room-id":  roomID,
				"exported": now.UTC().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return nil, &UploadError{Op: "upload", Err: err}
	}

	u, err := a.objects.PresignedGetObject(ctx, a.bucket, objectName, URLExpiry, nil)
	if err != nil {
		return nil, &UploadError{Op: "presign", Err: err}
	}

	a.log.Info("transcript exported",
		"room_id", roomID,
		"object", objectName,
		"messages", len(t.Messages),
		"size", humanize.Bytes(uint64(len(data))))

	return &Export{
		Object:       objectName,
		URL:          u.String(),
		MessageCount: len(t.Messages),
		Size:         int64(len(data)),
	}, nil
}

// UploadError marks a failure of the object storage backend
type UploadError struct {
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("transcript %s failed: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
