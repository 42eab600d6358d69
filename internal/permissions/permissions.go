// Package permissions maps room roles to capability sets.
//
// Capability sets are snapshots: a participant stores the set computed at
// role-assignment time, and checks run against that snapshot rather than
// against the current role table.
package permissions

import (
	"encoding/json"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Role is a participant's role inside one room.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleGuest       Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleParticipant, RoleGuest:
		return true
	}
	return false
}

// Priority orders roles for participant listings. Unknown roles sort last.
func (r Role) Priority() int {
	switch r {
	case RoleAdmin:
		return 1
	case RoleModerator:
		return 2
	case RoleParticipant:
		return 3
	case RoleGuest:
		return 4
	default:
		return 5
	}
}

// Capability is one atomic permission.
type Capability uint

const (
	CapAll Capability = iota
	CapManageRoom
	CapDeleteRoom
	CapManageParticipants
	CapDeleteMessages
	CapMuteUsers
	CapKickUsers
	CapManageRoomSettings
	CapSendMessages
	CapViewMessages
	CapJoinRoom

	capCount
)

var capabilityNames = [...]string{
	CapAll:                "all",
	CapManageRoom:         "manage_room",
	CapDeleteRoom:         "delete_room",
	CapManageParticipants: "manage_participants",
	CapDeleteMessages:     "delete_messages",
	CapMuteUsers:          "mute_users",
	CapKickUsers:          "kick_users",
	CapManageRoomSettings: "manage_room_settings",
	CapSendMessages:       "send_messages",
	CapViewMessages:       "view_messages",
	CapJoinRoom:           "join_room",
}

func (c Capability) String() string {
	if c < capCount {
		return capabilityNames[c]
	}
	return fmt.Sprintf("capability(%d)", uint(c))
}

// ParseCapability resolves a capability by its wire name.
func ParseCapability(name string) (Capability, bool) {
	for i, n := range capabilityNames {
		if n == name {
			return Capability(i), true
		}
	}
	return 0, false
}

// CapabilitySet is a closed set of capabilities backed by a bitset.
// The zero value is an empty set.
type CapabilitySet struct {
	bits *bitset.BitSet
}

// NewCapabilitySet builds a set holding caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	b := bitset.New(uint(capCount))
	for _, c := range caps {
		b.Set(uint(c))
	}
	return CapabilitySet{bits: b}
}

// Has reports whether the set grants c, either literally or through CapAll.
func (s CapabilitySet) Has(c Capability) bool {
	if s.bits == nil {
		return false
	}
	return s.bits.Test(uint(CapAll)) || s.bits.Test(uint(c))
}

// Contains reports whether c is literally present, ignoring CapAll.
func (s CapabilitySet) Contains(c Capability) bool {
	return s.bits != nil && s.bits.Test(uint(c))
}

func (s CapabilitySet) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

func (s CapabilitySet) Clone() CapabilitySet {
	if s.bits == nil {
		return CapabilitySet{}
	}
	return CapabilitySet{bits: s.bits.Clone()}
}

func (s CapabilitySet) Equal(o CapabilitySet) bool {
	return s.Len() == o.Len() && (s.Len() == 0 || s.bits.Equal(o.bits))
}

// Names returns the capability names in declaration order.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, s.Len())
	if s.bits == nil {
		return names
	}
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		names = append(names, Capability(i).String())
	}
	return names
}

func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON accepts a list of capability names. Unknown names are
// dropped so records written by newer builds still decode.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("decode capability set: %w", err)
	}
	caps := make([]Capability, 0, len(names))
	for _, n := range names {
		if c, ok := ParseCapability(n); ok {
			caps = append(caps, c)
		}
	}
	*s = NewCapabilitySet(caps...)
	return nil
}

var roleCapabilities = map[Role]CapabilitySet{
	RoleAdmin: NewCapabilitySet(CapAll),
	RoleModerator: NewCapabilitySet(
		CapManageParticipants,
		CapDeleteMessages,
		CapMuteUsers,
		CapKickUsers,
		CapManageRoomSettings,
	),
	RoleParticipant: NewCapabilitySet(CapSendMessages, CapViewMessages, CapJoinRoom),
	RoleGuest:       NewCapabilitySet(CapViewMessages),
}

// CapabilitiesFor returns a fresh copy of the capability set for role.
// Unknown or empty roles get the guest set.
func CapabilitiesFor(role Role) CapabilitySet {
	set, ok := roleCapabilities[role]
	if !ok {
		set = roleCapabilities[RoleGuest]
	}
	return set.Clone()
}

// Roles lists the known roles by priority.
func Roles() []Role {
	return []Role{RoleAdmin, RoleModerator, RoleParticipant, RoleGuest}
}
