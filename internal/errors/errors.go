package errors

import "errors"

// Setup errors. Returned before any file is copied.
var (
	ErrLocalRootMissing      = errors.New("local root does not exist")
	ErrRemoteRootUnavailable = errors.New("remote root missing and could not be created")
	ErrPathResolution        = errors.New("policy path resolution failed")
	ErrUnknownPolicy         = errors.New("unknown policy")
	ErrInvalidSpec           = errors.New("invalid sync spec")
)

// Inventory errors. A run cannot reconcile against an unknown inventory.
var (
	ErrInventory = errors.New("inventory collection failed")
)

// Transport errors.
var (
	ErrNoDevice       = errors.New("no device selected")
	ErrToolMissing    = errors.New("adb not found in PATH")
	ErrCommandTimeout = errors.New("adb command timed out")
)

// Scheduling and configuration errors.
var (
	ErrRunInProgress    = errors.New("another sync run is in progress")
	ErrQueueClosed      = errors.New("run queue is closed")
	ErrAlreadyQueued    = errors.New("pipeline is already queued")
	ErrPipelineNotFound = errors.New("pipeline not found")
)
