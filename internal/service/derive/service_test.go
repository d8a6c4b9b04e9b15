package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgpipe/image-deriver/internal/model"
	"github.com/imgpipe/image-deriver/internal/processor"
)

const marker = "_xoriginal"

// fakeStorage is an in-memory bucket. Save can be told to fail for specific
// destination keys to simulate a broken upload stream.
type fakeStorage struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	failSaves    map[string]error
	loadErr      error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		failSaves:    make(map[string]error),
	}
}

func (f *fakeStorage) Load(_ context.Context, objectName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return nil, f.loadErr
	}

	data, ok := f.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %q not found", objectName)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Save(_ context.Context, objectName, contentType string, src io.Reader, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failSaves[objectName]; err != nil {
		return err
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	f.objects[objectName] = data
	f.contentTypes[objectName] = contentType

	return nil
}

// derivatives returns every stored key except the seeded source.
func (f *fakeStorage) derivatives(source string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if k != source {
			keys = append(keys, k)
		}
	}
	return keys
}

// fakeSink collects every delivered result.
type fakeSink struct {
	mu      sync.Mutex
	results []model.TaskResult
}

func (f *fakeSink) SaveResult(_ context.Context, _ uuid.UUID, _ model.ObjectEvent, res model.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return nil
}

// seedJPEG stores a flat-colored JPEG original at key.
func seedJPEG(t *testing.T, st *fakeStorage, key string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 220, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, processor.Encode(&buf, img, "image/jpeg"))

	st.objects[key] = buf.Bytes()
	st.contentTypes[key] = "image/jpeg"
}

func specSizes() map[string]model.SizeSpec {
	return map[string]model.SizeSpec{
		"thumb": {Width: 100, Height: 100},
		"large": {Width: 1200, Height: 800},
	}
}

func TestProcessEventSkipsNonImages(t *testing.T) {
	st := newFakeStorage()
	svc := New(st, nil, nil, marker, specSizes())

	results, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "docs/report_xoriginal.pdf",
		ContentType: "application/pdf",
	})

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, st.derivatives(""))
}

func TestProcessEventSkipsNonOriginals(t *testing.T) {
	st := newFakeStorage()
	seedJPEG(t, st, "images/photo_thumb.jpg", 64, 48)
	svc := New(st, nil, nil, marker, specSizes())

	results, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "images/photo_thumb.jpg",
		ContentType: "image/jpeg",
	})

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, st.derivatives("images/photo_thumb.jpg"))
}

func TestProcessEventProducesAllDerivatives(t *testing.T) {
	st := newFakeStorage()
	seedJPEG(t, st, "images/photo_xoriginal.jpg", 64, 48)
	svc := New(st, nil, nil, marker, specSizes())

	results, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "images/photo_xoriginal.jpg",
		ContentType: "image/jpeg",
	})

	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		require.NoError(t, res.Err, "size %s", res.SizeName)
	}

	assert.ElementsMatch(t,
		[]string{"images/photo_thumb.jpg", "images/photo_large.jpg"},
		st.derivatives("images/photo_xoriginal.jpg"),
	)

	// Each derivative keeps the source content type and comes out at its
	// configured pixel dimensions.
	wantDims := map[string][2]int{
		"images/photo_thumb.jpg": {100, 100},
		"images/photo_large.jpg": {1200, 800},
	}

	for key, dims := range wantDims {
		assert.Equal(t, "image/jpeg", st.contentTypes[key])

		img, err := processor.Decode(bytes.NewReader(st.objects[key]), "image/jpeg")
		require.NoError(t, err, "decode %s", key)
		assert.Equal(t, dims[0], img.Bounds().Dx(), "%s width", key)
		assert.Equal(t, dims[1], img.Bounds().Dy(), "%s height", key)
	}
}

func TestProcessEventPartialFailure(t *testing.T) {
	st := newFakeStorage()
	seedJPEG(t, st, "images/photo_xoriginal.jpg", 64, 48)
	st.failSaves["images/photo_large.jpg"] = errors.New("write stream broken")

	sink := &fakeSink{}
	svc := New(st, sink, nil, marker, specSizes())

	results, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "images/photo_xoriginal.jpg",
		ContentType: "image/jpeg",
	})

	// One failing size must not fail the event or its sibling.
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]model.TaskResult{}
	for _, res := range results {
		byName[res.SizeName] = res
	}

	require.NoError(t, byName["thumb"].Err)
	require.Error(t, byName["large"].Err)
	assert.Equal(t, model.StatusProcessed, byName["thumb"].Status())
	assert.Equal(t, model.StatusFailed, byName["large"].Status())

	assert.ElementsMatch(t,
		[]string{"images/photo_thumb.jpg"},
		st.derivatives("images/photo_xoriginal.jpg"),
	)

	// Both settled tasks reach the sink, failure included.
	assert.Len(t, sink.results, 2)
}

func TestProcessEventSourceLoadError(t *testing.T) {
	st := newFakeStorage()
	st.loadErr = errors.New("bucket unavailable")
	svc := New(st, nil, nil, marker, specSizes())

	_, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "images/photo_xoriginal.jpg",
		ContentType: "image/jpeg",
	})

	require.Error(t, err)
}

func TestProcessEventUndecodableSource(t *testing.T) {
	st := newFakeStorage()
	st.objects["images/bad_xoriginal.jpg"] = []byte("definitely not a jpeg")
	svc := New(st, nil, nil, marker, specSizes())

	_, err := svc.ProcessEvent(context.Background(), model.ObjectEvent{
		Bucket:      "media",
		Name:        "images/bad_xoriginal.jpg",
		ContentType: "image/jpeg",
	})

	require.Error(t, err)
	assert.Empty(t, st.derivatives("images/bad_xoriginal.jpg"))
}
