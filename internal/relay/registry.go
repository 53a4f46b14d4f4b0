package relay

import (
	"errors"
	"sync"
	"unicode"
)

// MaxRoomCodeLength bounds the bucket key accepted from clients.
const MaxRoomCodeLength = 64

var (
	ErrInvalidRoom  = errors.New("invalid room code")
	ErrRoomFull     = errors.New("room is full")
	ErrTooManyRooms = errors.New("room limit reached")
)

// Membership is a snapshot of one room taken under the registry lock.
type Membership struct {
	Room    string
	Count   int
	Members []*Session
}

// Registry maps room codes to their member sessions. A room exists exactly
// while it has at least one member. All access goes through its methods.
type Registry struct {
	mu    sync.Mutex
	rooms map[string][]*Session
	index map[*Session]string

	maxRooms   int
	maxMembers int
}

// NewRegistry creates an empty registry. Zero limits are unlimited.
func NewRegistry(maxRooms, maxMembers int) *Registry {
	return &Registry{
		rooms:      make(map[string][]*Session),
		index:      make(map[*Session]string),
		maxRooms:   maxRooms,
		maxMembers: maxMembers,
	}
}

// Join adds s to the room identified by code, creating the room if needed.
// A session that was in another room is moved; the returned left snapshot
// describes that old room after the move (nil if there was none).
func (r *Registry) Join(s *Session, code string) (joined Membership, left *Membership, err error) {
	if !validRoomCode(code) {
		return Membership{}, nil, ErrInvalidRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, inRoom := r.index[s]
	if inRoom && current == code {
		return r.snapshot(code), nil, nil
	}

	members, exists := r.rooms[code]
	if exists && r.maxMembers > 0 && len(members) >= r.maxMembers {
		return Membership{}, nil, ErrRoomFull
	}
	if !exists && r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return Membership{}, nil, ErrTooManyRooms
	}

	if inRoom {
		old := r.remove(s, current)
		left = &old
	}

	r.rooms[code] = append(r.rooms[code], s)
	r.index[s] = code

	return r.snapshot(code), left, nil
}

// Leave removes s from its room. ok is false when s was in no room.
func (r *Registry) Leave(s *Session) (remaining Membership, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, inRoom := r.index[s]
	if !inRoom {
		return Membership{}, false
	}
	return r.remove(s, code), true
}

// Others returns the room of s and every other member of it.
func (r *Registry) Others(s *Session) (room string, others []*Session, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, inRoom := r.index[s]
	if !inRoom {
		return "", nil, false
	}
	for _, m := range r.rooms[code] {
		if m != s {
			others = append(others, m)
		}
	}
	return code, others, true
}

// RoomOf returns the room code s is in.
func (r *Registry) RoomOf(s *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.index[s]
	return code, ok
}

// Count returns the member count of a room, 0 if it does not exist.
func (r *Registry) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[code])
}

// Exists reports whether a room is currently registered.
func (r *Registry) Exists(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[code]
	return ok
}

// Stats returns the number of rooms and of sessions placed in a room.
func (r *Registry) Stats() (rooms, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.index)
}

// remove must be called with r.mu held.
func (r *Registry) remove(s *Session, code string) Membership {
	delete(r.index, s)

	members := r.rooms[code]
	for i, m := range members {
		if m == s {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(r.rooms, code)
		return Membership{Room: code}
	}
	r.rooms[code] = members
	return r.snapshot(code)
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot(code string) Membership {
	members := r.rooms[code]
	out := make([]*Session, len(members))
	copy(out, members)
	return Membership{Room: code, Count: len(out), Members: out}
}

func validRoomCode(code string) bool {
	if code == "" || len(code) > MaxRoomCodeLength {
		return false
	}
	for _, c := range code {
		if unicode.IsControl(c) || unicode.IsSpace(c) {
			return false
		}
	}
	return true
}
