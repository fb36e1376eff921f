package engine

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// ConflictFunc decides a bidirectional conflict for one path. The engine
// builds it from the policy hook, the caller's fallback, and the default.
type ConflictFunc func(local, remote FileRecord) Decision

// Plan is the reconciler's output.
type Plan struct {
	Operations []Operation
	// Skipped counts paths that were considered and need no copy.
	Skipped int
	// Conflicts counts paths routed to conflict resolution.
	Conflicts int
	// Degraded is carried through from remote collection.
	Degraded bool
}

// Reconcile computes the copy plan for two filtered inventories. It is a
// pure function with no I/O; all disk and transport work happens in the
// Executor. Paths are visited in sorted order so the plan is deterministic.
//
// Rules:
//   - push: local-only or local-newer paths are pushed; nothing else.
//   - pull: remote-only or remote-newer paths are pulled; nothing else.
//   - bidirectional: one-sided paths copy to the other side, local-newer
//     pushes, and remote-newer (or equal time with different size) goes to
//     resolve. A nil resolve means skip.
func Reconcile(local, remote Inventory, dir Direction, resolve ConflictFunc) Plan {
	var plan Plan

	switch dir {
	case DirectionPush:
		for _, p := range local.Paths() {
			lf := local[p]

			rf, ok := remote[p]
			if !ok || (!IsSame(lf, rf) && lf.ModTime > rf.ModTime) {
				plan.Operations = append(plan.Operations, pushOp(lf))
				continue
			}

			plan.Skipped++
		}

	case DirectionPull:
		for _, p := range remote.Paths() {
			rf := remote[p]

			lf, ok := local[p]
			if !ok || (!IsSame(lf, rf) && rf.ModTime > lf.ModTime) {
				plan.Operations = append(plan.Operations, pullOp(rf))
				continue
			}

			plan.Skipped++
		}

	case DirectionBidirectional:
		all := mapset.NewThreadUnsafeSetWithSize[string](len(local) + len(remote))
		for p := range local {
			all.Add(p)
		}

		for p := range remote {
			all.Add(p)
		}

		paths := all.ToSlice()
		slices.Sort(paths)

		for _, p := range paths {
			lf, hasLocal := local[p]
			rf, hasRemote := remote[p]

			switch {
			case !hasRemote:
				plan.Operations = append(plan.Operations, pushOp(lf))
			case !hasLocal:
				plan.Operations = append(plan.Operations, pullOp(rf))
			case IsSame(lf, rf):
				plan.Skipped++
			case lf.ModTime > rf.ModTime:
				plan.Operations = append(plan.Operations, pushOp(lf))
			default:
				plan.Conflicts++

				decision := DecisionSkip
				if resolve != nil {
					decision = resolve(lf, rf)
				}

				switch decision {
				case DecisionKeepLocal:
					plan.Operations = append(plan.Operations, pushOp(lf))
				case DecisionKeepRemote:
					plan.Operations = append(plan.Operations, pullOp(rf))
				default:
					plan.Skipped++
				}
			}
		}
	}

	return plan
}

func pushOp(rec FileRecord) Operation {
	return Operation{Kind: OpPush, Record: rec}
}

func pullOp(rec FileRecord) Operation {
	return Operation{Kind: OpPull, Record: rec, RemoteSource: rec.Source}
}
