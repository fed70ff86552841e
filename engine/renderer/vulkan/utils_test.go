package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	assert.NoError(t, check(vk.Success, "call"))
	assert.NoError(t, check(vk.Incomplete, "call"))

	err := check(vk.ErrorOutOfDate, "present %d", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSurfaceOutOfDate))
	assert.Contains(t, err.Error(), "present 2")

	err = check(vk.Suboptimal, "acquire")
	assert.True(t, errors.Is(err, core.ErrSurfaceOutOfDate))

	err = check(vk.ErrorDeviceLost, "submit")
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Contains(t, err.Error(), "VK_ERROR_DEVICE_LOST")
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", ResultString(vk.Success))
	assert.Equal(t, "VkResult(-12345)", ResultString(vk.Result(-12345)))
	assert.True(t, IsResultSuccess(vk.Suboptimal))
	assert.False(t, IsResultSuccess(vk.ErrorOutOfDate))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := safeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])

	assert.Equal(t, "llvmpipe", cString([]byte{'l', 'l', 'v', 'm', 'p', 'i', 'p', 'e', 0, 'x'}))
	assert.Equal(t, "abc", cString([]byte("abc")))
}

func TestDebugReportLevel(t *testing.T) {
	cases := []struct {
		flags vk.DebugReportFlagBits
		level core.LogLevel
	}{
		{vk.DebugReportErrorBit, core.LogLevelError},
		{vk.DebugReportErrorBit | vk.DebugReportWarningBit, core.LogLevelError},
		{vk.DebugReportWarningBit, core.LogLevelWarn},
		{vk.DebugReportPerformanceWarningBit, core.LogLevelWarn},
		{vk.DebugReportInformationBit, core.LogLevelInfo},
		{vk.DebugReportDebugBit, core.LogLevelDebug},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, debugReportLevel(vk.DebugReportFlags(tc.flags)), "flags %#x", tc.flags)
		assert.NotZero(t, debugReportFlags&tc.flags, "flags %#x not subscribed", tc.flags)
	}
}
