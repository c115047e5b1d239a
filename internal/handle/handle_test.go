package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/acquisition-cli/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"foo", "foo"},
		{"@Foo", "foo"},
		{"https://platform/foo/", "foo"},
		{"https://www.instagram.com/Foo.Bar/?hl=en", "foo.bar"},
		{"instagram.com/foo_bar", "foo_bar"},
		{"https://www.tiktok.com/@Dancer", "dancer"},
		{"https://www.youtube.com/c/SomeChannel", "somechannel"},
		{"  @@spaced  ", "spaced"},
		{"ＦＵＬＬ", "full"},
		{"", ""},
		{"https://www.instagram.com/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"@Foo", "https://platform/foo/", "Straße", "a.b_c-d", "https://www.tiktok.com/@X"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Valid("foo.bar_baz-1"))
	assert.True(t, Valid("müller"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("has space"))
	assert.False(t, Valid("semi;colon"))
	assert.False(t, Valid(string(make([]byte, 65))))
}

func TestProfileURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.instagram.com/foo/", ProfileURL(model.PlatformInstagram, "foo"))
	assert.Equal(t, "https://www.tiktok.com/@foo", ProfileURL(model.PlatformTikTok, "foo"))
	assert.Equal(t, "https://www.youtube.com/@foo", ProfileURL(model.PlatformYouTube, "foo"))
	assert.Equal(t, "foo", Normalize(ProfileURL(model.PlatformTikTok, "foo")))
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Platform
		ok   bool
	}{
		{"https://www.instagram.com/anna/", model.PlatformInstagram, true},
		{"instagram.com/anna", model.PlatformInstagram, true},
		{"https://m.tiktok.com/@ben", model.PlatformTikTok, true},
		{"https://www.youtube.com/@chris", model.PlatformYouTube, true},
		{"https://example.com/anna", "", false},
		{"@anna", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectPlatform(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
