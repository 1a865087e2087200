// Package permission holds the capability rules for chat commands as pure
// functions over a snapshot of the actor's roles.
package permission

// Snapshot captures what the platform reports about an actor.
type Snapshot struct {
	Owner           bool
	Administrator   bool
	ManageNicknames bool
}

// HasRenamePermission reports whether the actor may rename other members.
func HasRenamePermission(s Snapshot) bool {
	return s.Owner || s.Administrator || s.ManageNicknames
}

// CanActForOthers reports whether the actor may record events for someone else.
func CanActForOthers(s Snapshot) bool { return HasRenamePermission(s) }

// CanClearOthers reports whether the actor may clear someone else's status.
func CanClearOthers(s Snapshot) bool { return HasRenamePermission(s) }

// CanConfigure reports whether the actor may change process-wide settings.
func CanConfigure(s Snapshot) bool {
	return s.Owner || s.Administrator
}
