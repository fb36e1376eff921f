package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Direction selects which side is authoritative for a run.
type Direction string

const (
	// DirectionPush copies local files to the remote. Local is authoritative.
	DirectionPush Direction = "push"

	// DirectionPull copies remote files to local. Remote is authoritative.
	DirectionPull Direction = "pull"

	// DirectionBidirectional copies in both directions, resolving the
	// remote-newer case through the conflict chain.
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection accepts the canonical names and the legacy spellings
// used by older pipeline files.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "push", "local_to_device", "upload":
		return DirectionPush, nil
	case "pull", "device_to_local", "download":
		return DirectionPull, nil
	case "bidirectional", "both", "sync":
		return DirectionBidirectional, nil
	default:
		return "", fmt.Errorf("unknown sync direction %q", s)
	}
}

// Valid reports whether d is one of the canonical directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionPush, DirectionPull, DirectionBidirectional:
		return true
	}

	return false
}

// FileRecord describes one plain file on either side. ModTime is unix
// seconds; remote records may only carry minute resolution. Source is the
// absolute local path for local records and the full remote path for
// remote records.
type FileRecord struct {
	RelPath string
	Size    int64
	ModTime int64
	Source  string
}

// Inventory maps relative path to record for one side of one run.
type Inventory map[string]FileRecord

// Paths returns the inventory keys in sorted order.
func (inv Inventory) Paths() []string {
	return slices.Sorted(maps.Keys(inv))
}

// SyncSpec is the caller-owned configuration for a run. The engine takes
// a deep copy at the start of each run and never mutates the original.
type SyncSpec struct {
	Name              string
	Local             string
	Remote            string
	Direction         Direction
	IncludeExtensions []string
	ExcludeExtensions []string
	Ignore            []string
	SyncDays          int
	Policy            string
	PolicyConfig      map[string]any
}

// Clone returns a deep copy of the spec.
func (s SyncSpec) Clone() SyncSpec {
	c := s
	c.IncludeExtensions = slices.Clone(s.IncludeExtensions)
	c.ExcludeExtensions = slices.Clone(s.ExcludeExtensions)
	c.Ignore = slices.Clone(s.Ignore)
	c.PolicyConfig = cloneConfig(s.PolicyConfig)

	return c
}

func cloneConfig(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = cloneConfig(tv)
		case []any:
			out[k] = slices.Clone(tv)
		default:
			out[k] = v
		}
	}

	return out
}

// OpKind is the copy direction of a single operation.
type OpKind int

const (
	// OpPush copies a local file to the remote.
	OpPush OpKind = iota
	// OpPull copies a remote file to local.
	OpPull
)

func (k OpKind) String() string {
	switch k {
	case OpPush:
		return "push"
	case OpPull:
		return "pull"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Operation is one planned copy. RemoteSource is set only for pulls and
// holds the remote path captured from the remote inventory, so a policy
// that rewrites the remote root cannot redirect the read.
type Operation struct {
	Kind         OpKind
	Record       FileRecord
	RemoteSource string
}

// Decision is the outcome of conflict resolution.
type Decision int

const (
	// DecisionSkip leaves both sides untouched.
	DecisionSkip Decision = iota
	// DecisionKeepLocal overwrites the remote copy with the local one.
	DecisionKeepLocal
	// DecisionKeepRemote overwrites the local copy with the remote one.
	DecisionKeepRemote
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionKeepLocal:
		return "keep_local"
	case DecisionKeepRemote:
		return "keep_remote"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision maps a textual decision to a Decision. Unknown values
// map to DecisionSkip along with an error.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "":
		return DecisionSkip, nil
	case "keep_local", "local":
		return DecisionKeepLocal, nil
	case "keep_remote", "remote", "device":
		return DecisionKeepRemote, nil
	default:
		return DecisionSkip, fmt.Errorf("unknown conflict decision %q", s)
	}
}

// Stats summarizes a run. Created empty at run start, filled in by the
// Executor, and returned by value.
type Stats struct {
	Uploaded   int
	Downloaded int
	Skipped    int
	Errored    int

	// Operations is the number of planned copies.
	Operations int
	// Degraded is set when the remote listing fell back to a shallow,
	// non-recursive listing. Nested remote files were not considered.
	Degraded bool
	// Cancelled is set when a stop request ended the run early.
	Cancelled bool
}
