package adb

import (
	"testing"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLs(t *testing.T) {
	out := "total 72\n" +
		"drwxrwx--x  4 root     sdcard_rw  3452 2026-02-09 13:24 .\n" +
		"drwxrwx--x 41 root     sdcard_rw  3452 2026-01-01 00:00 ..\n" +
		"-rw-rw----  1 u0_a199  media_rw  30761 2026-02-22 11:47 How I Use It.html\r\n" +
		"drwxrwx--x  2 root     sdcard_rw  3452 2026-02-09 13:24 Camera\n" +
		"lrwxrwxrwx  1 root     root         21 2026-02-09 13:24 link -> /sdcard/x\n" +
		"-rw-rw----  1 u0_a199  media_rw     12 yesterday noon weird.txt\n" +
		"ls: /sdcard/secret: Permission denied\n"

	entries := parseLs(out, time.UTC)
	require.Len(t, entries, 3)

	assert.Equal(t, engine.RemoteEntry{
		Name:       "How I Use It.html",
		Size:       30761,
		ModTime:    time.Date(2026, 2, 22, 11, 47, 0, 0, time.UTC).Unix(),
		HasModTime: true,
	}, entries[0])

	assert.Equal(t, "Camera", entries[1].Name)
	assert.True(t, entries[1].IsDir)

	assert.Equal(t, "weird.txt", entries[2].Name)
	assert.False(t, entries[2].HasModTime)
}

func TestParseLs_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	entries := parseLs("-rw-r--r-- 1 a b 5 2026-01-01 08:00 f.txt\n", loc)

	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), entries[0].ModTime)
}

func TestParseFind(t *testing.T) {
	out := "a.txt\t100\t1760000000.5000000000\n" +
		"dir/with space/b.jpg\t2048\t1760000123\n" +
		"\n" +
		"broken line\n" +
		"bad-size\tx\t1\n" +
		"bad-time\t1\tnow\n"

	files := parseFind(out)
	assert.Equal(t, []engine.RemoteFile{
		{RelPath: "a.txt", Size: 100, ModTime: 1760000000},
		{RelPath: "dir/with space/b.jpg", Size: 2048, ModTime: 1760000123},
	}, files)
}

func TestParseStat(t *testing.T) {
	e, ok := parseStat("regular file 42 1760000000\n", "a.txt")
	require.True(t, ok)
	assert.Equal(t, engine.RemoteEntry{Name: "a.txt", Size: 42, ModTime: 1760000000, HasModTime: true}, e)

	e, ok = parseStat("directory 3452 1760000000", "d")
	require.True(t, ok)
	assert.True(t, e.IsDir)

	_, ok = parseStat("stat: 'x': No such file", "x")
	assert.False(t, ok)

	_, ok = parseStat("", "x")
	assert.False(t, ok)
}

func TestParseDevices(t *testing.T) {
	out := "* daemon not running; starting now at tcp:5037\n" +
		"* daemon started successfully\n" +
		"List of devices attached\n" +
		"R58M123ABC\tdevice\n" +
		"emulator-5554\toffline\n" +
		"0123456789\tunauthorized\n\n"

	devices := parseDevices(out)
	assert.Equal(t, []Device{
		{Serial: "R58M123ABC", State: "device"},
		{Serial: "emulator-5554", State: "offline"},
		{Serial: "0123456789", State: "unauthorized"},
	}, devices)

	assert.True(t, devices[0].Online())
	assert.False(t, devices[1].Online())
}
