package adb

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/engine"
)

// lsTimeLayout is the timestamp format of toybox ls -la on Android.
const lsTimeLayout = "2006-01-02 15:04"

// lsLine matches "perm links owner group size date time name". The name
// keeps embedded spaces.
var lsLine = regexp.MustCompile(`^(\S+)\s+\S+\s+\S+\s+\S+\s+(\S+)\s+(\S+\s+\S+)\s+(.+)$`)

// parseLs parses the output of ls -la. Lines that do not have the
// expected shape (the "total" header, error text) are skipped. Entries
// with an unparsable time keep HasModTime false. Symlinks are skipped.
func parseLs(out string, loc *time.Location) []engine.RemoteEntry {
	var entries []engine.RemoteEntry

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")

		m := lsLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		perm, sizeField, when, name := m[1], m[2], m[3], m[4]
		if name == "." || name == ".." || strings.HasPrefix(perm, "l") {
			continue
		}

		entry := engine.RemoteEntry{
			Name:  name,
			IsDir: strings.HasPrefix(perm, "d"),
		}

		if size, err := strconv.ParseInt(sizeField, 10, 64); err == nil {
			entry.Size = size
		}

		if t, err := time.ParseInLocation(lsTimeLayout, strings.Join(strings.Fields(when), " "), loc); err == nil {
			entry.ModTime = t.Unix()
			entry.HasModTime = true
		}

		entries = append(entries, entry)
	}

	return entries
}

// parseFind parses find -printf '%P\t%s\t%T@\n' output. %T@ carries a
// fractional part which is truncated to whole seconds.
func parseFind(out string) []engine.RemoteFile {
	var files []engine.RemoteFile

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" {
			continue
		}

		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}

		mtime, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}

		files = append(files, engine.RemoteFile{
			RelPath: parts[0],
			Size:    size,
			ModTime: int64(mtime),
		})
	}

	return files
}

// parseStat parses stat -c '%F %s %Y'. The file type (%F) may contain
// spaces ("regular file"), so size and mtime are read from the end.
func parseStat(out, name string) (engine.RemoteEntry, bool) {
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return engine.RemoteEntry{}, false
	}

	n := len(fields)

	size, err := strconv.ParseInt(fields[n-2], 10, 64)
	if err != nil {
		return engine.RemoteEntry{}, false
	}

	mtime, err := strconv.ParseInt(fields[n-1], 10, 64)
	if err != nil {
		return engine.RemoteEntry{}, false
	}

	return engine.RemoteEntry{
		Name:       name,
		Size:       size,
		ModTime:    mtime,
		HasModTime: true,
		IsDir:      strings.Contains(strings.Join(fields[:n-2], " "), "directory"),
	}, true
}

// Device is one line of adb devices output.
type Device struct {
	Serial string
	State  string
}

// Online reports whether the device accepts commands.
func (d Device) Online() bool {
	return d.State == "device"
}

// parseDevices parses adb devices output, skipping the header and any
// daemon startup chatter.
func parseDevices(out string) []Device {
	var devices []Device

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		devices = append(devices, Device{Serial: fields[0], State: fields[1]})
	}

	return devices
}
