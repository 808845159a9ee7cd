package intake_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-intake/pkg/intake"
	"github.com/tendant/simple-intake/pkg/intake/storage/fs"
	memorystorage "github.com/tendant/simple-intake/pkg/intake/storage/memory"
)

var fixedDay = time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedDay }

type emptyNameUpload struct {
	opened bool
}

func (u *emptyNameUpload) Filename() string { return "" }

func (u *emptyNameUpload) Open() (io.ReadCloser, error) {
	u.opened = true
	return io.NopCloser(strings.NewReader("data")), nil
}

type failingStore struct {
	*memorystorage.Backend
	err error
}

func (s *failingStore) Create(ctx context.Context, key string, r io.Reader) error { return s.err }

func (s *failingStore) Put(ctx context.Context, key string, r io.Reader) error { return s.err }

func TestSaveUpload_NoFile(t *testing.T) {
	store := memorystorage.New()
	ingester, err := intake.NewIngester(store)
	require.NoError(t, err)

	stored, err := ingester.SaveUpload(context.Background(), nil, "anything")
	assert.NoError(t, err)
	assert.Nil(t, stored)

	empty := &emptyNameUpload{}
	stored, err = ingester.SaveUpload(context.Background(), empty, "anything")
	assert.NoError(t, err)
	assert.Nil(t, stored)
	assert.False(t, empty.opened)

	assert.Equal(t, 0, store.Writes())
}

func TestSaveUpload_FilenameMode(t *testing.T) {
	store := memorystorage.New()
	ingester, err := intake.NewIngester(store, intake.WithIngestClock(fixedClock))
	require.NoError(t, err)

	stored, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("My Photo #1.PNG", []byte("png-bytes")), "")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, "2024-01-05-My_Photo1.PNG", stored.Name)
	assert.Equal(t, "memory://2024-01-05-My_Photo1.PNG", stored.Path)
	assert.Equal(t, int64(9), stored.Size)

	rc, err := store.Open(context.Background(), stored.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestSaveUpload_TitleMode(t *testing.T) {
	store := memorystorage.New()
	ingester, err := intake.NewIngester(store,
		intake.WithIngestClock(fixedClock),
		intake.WithNamingPolicy(intake.NamingPolicy{UseTitle: true}),
	)
	require.NoError(t, err)

	stored, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("IMG_0001.jpg", []byte("x")), "Lagoa Nova")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05-Lagoa_Nova.jpg", stored.Name)
}

func TestSaveUpload_TwiceOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)

	ingester, err := intake.NewIngester(store, intake.WithIngestClock(fixedClock))
	require.NoError(t, err)

	first, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("a.txt", []byte("first")), "")
	require.NoError(t, err)
	second, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("a.txt", []byte("second")), "")
	require.NoError(t, err)

	assert.Equal(t, "2024-01-05-a.txt", first.Name)
	assert.NotEqual(t, first.Name, second.Name)
	assert.True(t, strings.HasPrefix(second.Name, "2024-01-05-a-"))
	assert.True(t, strings.HasSuffix(second.Name, ".txt"))

	// The first file is kept intact
	data, err := os.ReadFile(filepath.Join(dir, first.Name))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = os.ReadFile(filepath.Join(dir, second.Name))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSaveUpload_Overwrite(t *testing.T) {
	dir := t.TempDir()
	store, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)

	ingester, err := intake.NewIngester(store,
		intake.WithIngestClock(fixedClock),
		intake.WithNamingPolicy(intake.NamingPolicy{Collision: intake.CollisionOverwrite}),
	)
	require.NoError(t, err)

	for _, content := range []string{"first", "second"} {
		stored, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("a.txt", []byte(content)), "")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-05-a.txt", stored.Name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2024-01-05-a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSaveUpload_StorageFailure(t *testing.T) {
	store := &failingStore{Backend: memorystorage.New(), err: errors.New("disk full")}
	ingester, err := intake.NewIngester(store, intake.WithStoreName("local"))
	require.NoError(t, err)

	_, err = ingester.SaveUpload(context.Background(), intake.NewBytesUpload("a.txt", []byte("x")), "")
	require.Error(t, err)

	var storageErr *intake.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "local", storageErr.Backend)
	assert.Equal(t, "save_upload", storageErr.Op)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSaveUpload_DownscalesWideImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		img.Set(x, 100, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	store := memorystorage.New()
	ingester, err := intake.NewIngester(store, intake.WithMaxImageWidth(100))
	require.NoError(t, err)

	stored, err := ingester.SaveUpload(context.Background(), intake.NewBytesUpload("wide.png", buf.Bytes()), "")
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), stored.Key)
	require.NoError(t, err)
	defer rc.Close()
	cfg, err := png.DecodeConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	// Non-image uploads pass through untouched
	stored, err = ingester.SaveUpload(context.Background(), intake.NewBytesUpload("notes.txt", []byte("hello")), "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Size)
}

func TestNewIngester_Validation(t *testing.T) {
	_, err := intake.NewIngester(nil)
	assert.Error(t, err)

	_, err = intake.NewIngester(memorystorage.New(), intake.WithNamingPolicy(intake.NamingPolicy{Collision: "rename"}))
	assert.Error(t, err)

	ingester, err := intake.NewIngester(memorystorage.New())
	require.NoError(t, err)
	assert.Equal(t, intake.CollisionSuffix, ingester.Policy().Collision)
}
