package cache

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var slotName = regexp.MustCompile(`^Inv_[0-9a-f]{40}\.mdf$`)

func TestDeriveCachePathDeterministic(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	origin := `\\server\share\Inv.mdf`

	first := DeriveCachePath(root, origin)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, DeriveCachePath(root, origin))
	}
	require.Equal(t, root, filepath.Dir(first))
	require.Regexp(t, slotName, filepath.Base(first))
}

func TestDeriveCachePathDistinctOrigins(t *testing.T) {
	root := "/cache"
	seen := map[string]string{}
	origins := []string{
		`\\server\share\Inv.mdf`,
		`\\server\share2\Inv.mdf`,
		`\\other\share\Inv.mdf`,
		"/mnt/share/Inv.mdf",
		"/mnt/share/inv.mdf",
		"/mnt/share/sub/Inv.mdf",
	}
	for _, origin := range origins {
		got := DeriveCachePath(root, origin)
		prev, dup := seen[got]
		require.False(t, dup, "%s collides with %s", origin, prev)
		seen[got] = origin
	}
}

func TestDeriveCachePathCanonicalizesUNC(t *testing.T) {
	root := "/cache"
	want := DeriveCachePath(root, `\\server\share\Inv.mdf`)

	require.Equal(t, want, DeriveCachePath(root, `//server/share/Inv.mdf`))
	require.Equal(t, want, DeriveCachePath(root, `\\server\share\sub\..\Inv.mdf`))
	require.Equal(t, want, DeriveCachePath(root, `\\server\share\.\Inv.mdf`))
}

func TestDeriveCachePathResolvesRelative(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	root := "/cache"
	require.Equal(t,
		DeriveCachePath(root, filepath.Join(wd, "data", "Inv.mdf")),
		DeriveCachePath(root, filepath.Join("data", "..", "data", "Inv.mdf")),
	)
}

func TestDeriveCachePathSanitizesStem(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		prefix string
	}{
		{"invalid runes", "/data/in:v?*.mdf", "in_v___"},
		{"control rune", "/data/in\tv.mdf", "in_v_"},
		{"blank stem", "/data/   .mdf", "database_"},
		{"dot file", "/data/.mdf", "database_"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := filepath.Base(DeriveCachePath("/cache", tc.origin))
			require.Regexp(t, "^"+regexp.QuoteMeta(tc.prefix)+"[0-9a-f]{40}\\.mdf$", got)
		})
	}
}

func TestDeriveCachePathSanitizesExtension(t *testing.T) {
	got := filepath.Base(DeriveCachePath("/cache", "/data/Inv.m?df"))
	require.Regexp(t, `^Inv_[0-9a-f]{40}\.m_df$`, got)

	got = filepath.Base(DeriveCachePath("/cache", "/data/Inv.md\x01f"))
	require.Regexp(t, `^Inv_[0-9a-f]{40}\.md_f$`, got)
}

func TestCompanionPath(t *testing.T) {
	require.Equal(t, "/a/Inv.ldf", CompanionPath("/a/Inv.mdf", ".ldf"))
	require.Equal(t, "/a.b/Inv.ldf", CompanionPath("/a.b/Inv", ".ldf"))
	require.Equal(t, `\\server\share\Inv.ldf`, CompanionPath(`\\server\share\Inv.mdf`, ".ldf"))
}

func TestDefaultRoot(t *testing.T) {
	root := DefaultRoot()
	require.Equal(t, defaultRootName, filepath.Base(root))
	require.True(t, filepath.IsAbs(root))
}
