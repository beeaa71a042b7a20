package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/minio/minio-go/v7"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	bucket   string
	object   string
	body     []byte
	opts     minio.PutObjectOptions
	expiry   time.Duration
	putErr   error
	presignE error
}

func (f *fakeObjects) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.bucket, f.object, f.body, f.opts = bucketName, objectName, body, opts
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: size}, nil
}

func (f *fakeObjects) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	if f.presignE != nil {
		return nil, f.presignE
	}
	f.expiry = expires
	return url.Parse("https://s3.example.com/" + bucketName + "/" + objectName + "?X-Amz-Signature=abc")
}

func newArchiver(t *testing.T, objects ObjectStore) (*Archiver, *room.MemoryStore, *room.Room) {
	t.Helper()
	store := room.NewMemoryStore()
	r, err := store.CreateRoom(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	a := NewArchiver(objects, "transcripts-bucket", store, logger.Discard())
	a.now = func() time.Time { return time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC) }
	return a, store, r
}

func TestObjectName(t *testing.T) {
	at := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "transcripts/2026/03/07/abc-1772895845.json", ObjectName("abc", at))
}

func TestExportRoom(t *testing.T) {
	ctx := context.Background()
	objects := &fakeObjects{}
	a, store, r := newArchiver(t, objects)

	for _, body := range []string{"first", "second"} {
		_, err := store.AppendMessage(ctx, r.ID, "alice", body)
		require.NoError(t, err)
	}

	export, err := a.ExportRoom(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, "transcripts-bucket", objects.bucket)
	assert.Equal(t, ObjectName(r.ID, a.now()), export.Object)
	assert.Equal(t, export.Object, objects.object)
	assert.Equal(t, URLExpiry, objects.expiry)
	assert.Contains(t, export.URL, export.Object)
	assert.Equal(t, 2, export.MessageCount)
	assert.Equal(t, int64(len(objects.body)), export.Size)
	assert.Equal(t, "application/json", objects.opts.ContentType)
	assert.Equal(t, r.ID, objects.opts.UserMetadata["room-id"])

	var tr Transcript
	require.NoError(t, json.Unmarshal(objects.body, &tr))
	assert.Equal(t, r.ID, tr.Room.ID)
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "first", tr.Messages[0].Body)
	assert.Equal(t, "second", tr.Messages[1].Body)
}

func TestExportRoomErrors(t *testing.T) {
	ctx := context.Background()

	a, _, r := newArchiver(t, &fakeObjects{})
	_, err := a.ExportRoom(ctx, "missing")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	boom := errors.New("bucket gone")
	a, _, r = newArchiver(t, &fakeObjects{putErr: boom})
	_, err = a.ExportRoom(ctx, r.ID)
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "upload", uploadErr.Op)
	assert.ErrorIs(t, err, boom)

	a, _, r = newArchiver(t, &fakeObjects{presignE: boom})
	_, err = a.ExportRoom(ctx, r.ID)
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "presign", uploadErr.Op)
}

func TestHandleExport(t *testing.T) {
	objects := &fakeObjects{}
	a, _, r := newArchiver(t, objects)

	router := chi.NewRouter()
	router.Route("/api/rooms", NewHandler(a, time.Second, logger.Discard()).RegisterRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rooms/"+r.ID+"/transcript", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var export Export
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&export))
	assert.Equal(t, objects.object, export.Object)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rooms/missing/transcript", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	objects.putErr = errors.New("unreachable")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rooms/"+r.ID+"/transcript", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
