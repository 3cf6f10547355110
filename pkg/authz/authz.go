// Package authz provides the moderation access-control checks.
//
// Decisions are pure: callers pass a snapshot of the acting session's
// standing in the room and get an allow/deny back. Nothing here mutates
// registry state, and a privilege change between check and act is an
// accepted race (the registry operations are individually safe).
package authz

// Action is a request that must be authorized against room standing.
type Action int

const (
	ActionBroadcast Action = iota // send a message to the room
	ActionSendFile                // upload a file to the room's store
	ActionGetFile                 // fetch a file from the room's store
	ActionKick                    // remove a member
	ActionBan                     // remove a member and deny-list them
	ActionGrantModerator
	ActionRevokeModerator
)

func (a Action) String() string {
	switch a {
	case ActionBroadcast:
		return "broadcast"
	case ActionSendFile:
		return "send_file"
	case ActionGetFile:
		return "get_file"
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	case ActionGrantModerator:
		return "grant_moderator"
	case ActionRevokeModerator:
		return "revoke_moderator"
	default:
		return "unknown"
	}
}

// Standing is the actor's snapshot relationship to the room at decision
// time. Moderator implies Member (the registry maintains that invariant).
type Standing struct {
	Member    bool
	Moderator bool
}

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotMember
	ReasonInsufficientPrivileges
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonNotMember:
		return "not a member of the room"
	case ReasonInsufficientPrivileges:
		return "insufficient privileges"
	default:
		return "unknown"
	}
}

// requiresModerator maps each action to the standing it demands. An
// action absent from the map requires plain membership.
var requiresModerator = map[Action]bool{
	ActionKick:            true,
	ActionBan:             true,
	ActionGrantModerator:  true,
	ActionRevokeModerator: true,
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with the given reason.
func Deny(r Reason) Decision {
	return Decision{Reason: r}
}

// Authorize decides whether the actor's standing permits the action.
// Self-targeting moderation is permitted, including revoking one's own
// moderator flag (a room can end up with no moderators; matching the
// historical behavior, this is allowed and left to room members to
// avoid).
func Authorize(action Action, actor Standing) Decision {
	if !actor.Member {
		return Deny(ReasonNotMember)
	}
	if requiresModerator[action] && !actor.Moderator {
		return Deny(ReasonInsufficientPrivileges)
	}
	return Allow
}
