package apps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	pkg, ok := Resolve(PlatformAndroid, "Settings")
	assert.True(t, ok)
	assert.Equal(t, "com.android.settings", pkg)

	// Whitespace and case are ignored.
	pkg, ok = Resolve(PlatformAndroid, "  DouYin ")
	assert.True(t, ok)
	assert.Equal(t, "com.ss.android.ugc.aweme", pkg)

	// Chinese names resolve too.
	pkg, ok = Resolve(PlatformAndroid, "微信")
	assert.True(t, ok)
	assert.Equal(t, "com.tencent.mm", pkg)

	// Unknown names pass through so raw package ids still launch.
	pkg, ok = Resolve(PlatformAndroid, "com.example.custom")
	assert.False(t, ok)
	assert.Equal(t, "com.example.custom", pkg)
}

func TestResolveHarmonyOS(t *testing.T) {
	pkg, ok := Resolve(PlatformHarmonyOS, "settings")
	assert.True(t, ok)
	assert.Equal(t, "com.huawei.hmos.settings", pkg)
}

func TestNamesSorted(t *testing.T) {
	names := Names(PlatformAndroid)
	assert.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
