package intake

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"My Photo #1.PNG", "My_Photo1.PNG"},
		{"two  spaces.jpg", "two__spaces.jpg"},
		{"a# b", "ab"},
		{"a #b", "ab"},
		{"a b#c", "a_bc"},
		{"video.final-v2_ok.mp4", "video.final-v2_ok.mp4"},
		{"ação.jpg", "ao.jpg"},
		{"../../etc/passwd", "....etcpasswd"},
		{"###", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestStoredName(t *testing.T) {
	date := time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filename string
		title    string
		useTitle bool
		expected string
	}{
		{"filename mode", "My Photo #1.PNG", "", false, "2024-01-05-My_Photo1.PNG"},
		{"title ignored in filename mode", "a.jpg", "Centro", false, "2024-01-05-a.jpg"},
		{"title mode", "IMG_0001.jpg", "Lagoa Nova", true, "2024-01-05-Lagoa_Nova.jpg"},
		{"title mode empty title falls back", "IMG_0001.jpg", "  ", true, "2024-01-05-IMG_0001.jpg"},
		{"title mode title sanitizes away", "clip.mp4", "###", true, "2024-01-05-clip.mp4"},
		{"no stem", "#.png", "", false, "2024-01-05-upload.png"},
		{"no extension", "README", "", false, "2024-01-05-README"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StoredName(date, tt.filename, tt.title, tt.useTitle))
		})
	}
}

func TestStoredName_LongStem(t *testing.T) {
	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	name := StoredName(date, strings.Repeat("a", 300)+".jpg", "", false)

	assert.Equal(t, "2024-01-05-"+strings.Repeat("a", maxStemLength)+".jpg", name)
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "2024-01-05-a-abc123.jpg", withSuffix("2024-01-05-a.jpg", "abc123"))
	assert.Equal(t, "2024-01-05-README-abc123", withSuffix("2024-01-05-README", "abc123"))

	id := shortID()
	assert.Len(t, id, suffixLength)
	assert.Equal(t, id, Sanitize(id))
}

func TestNamingPolicy_Validate(t *testing.T) {
	assert.NoError(t, NamingPolicy{}.Validate())
	assert.NoError(t, NamingPolicy{Collision: CollisionSuffix}.Validate())
	assert.NoError(t, NamingPolicy{Collision: CollisionOverwrite}.Validate())
	assert.Error(t, NamingPolicy{Collision: "rename"}.Validate())
}
