package gateway

import "sync"

// room is one fan-out group. A dead room has been removed from the map and must not take new members.
type room struct {
	mu      sync.RWMutex
	members map[string]*Client // connId -> Client
	dead    bool
}

// RoomMap tracks which connections are joined to which rooms, with one lock per room
type RoomMap struct {
	rooms sync.Map // roomId -> *room
}

// NewRoomMap creates a new RoomMap
func NewRoomMap() *RoomMap {
	return &RoomMap{}
}

// Join adds the client to roomId. It returns false once the client has been detached by disconnect.
// Lock order is client then room.
func (m *RoomMap) Join(roomId string, client *Client) bool {
	client.roomMu.Lock()
	defer client.roomMu.Unlock()

	if client.detached {
		return false
	}
	if _, ok := client.rooms[roomId]; ok {
		return true
	}

	for {
		v, _ := m.rooms.LoadOrStore(roomId, &room{members: make(map[string]*Client)})
		r := v.(*room)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.members[client.ConnId] = client
		r.mu.Unlock()
		break
	}

	client.rooms[roomId] = struct{}{}
	return true
}

// Leave removes the client from roomId and drops the room once empty
func (m *RoomMap) Leave(roomId string, client *Client) {
	client.roomMu.Lock()
	defer client.roomMu.Unlock()

	delete(client.rooms, roomId)
	m.leave(roomId, client.ConnId)
}

// LeaveAll detaches the client and removes it from every room it holds
func (m *RoomMap) LeaveAll(client *Client) []string {
	rooms := client.detach()
	for _, roomId := range rooms {
		m.leave(roomId, client.ConnId)
	}
	return rooms
}

func (m *RoomMap) leave(roomId, connId string) {
	v, ok := m.rooms.Load(roomId)
	if !ok {
		return
	}
	r := v.(*room)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, connId)
	if len(r.members) == 0 && !r.dead {
		r.dead = true
		m.rooms.CompareAndDelete(roomId, r)
	}
}

// Members returns a snapshot of the room's connections
func (m *RoomMap) Members(roomId string) []*Client {
	v, ok := m.rooms.Load(roomId)
	if !ok {
		return nil
	}
	r := v.(*room)

	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.members))
	for _, c := range r.members {
		clients = append(clients, c)
	}
	return clients
}

// Dissolve removes every connection from roomId and forgets the room
func (m *RoomMap) Dissolve(roomId string) int {
	v, ok := m.rooms.LoadAndDelete(roomId)
	if !ok {
		return 0
	}
	r := v.(*room)

	r.mu.Lock()
	r.dead = true
	members := r.members
	r.members = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range members {
		c.removeRoom(roomId)
	}
	return len(members)
}

// Count returns the number of live rooms
func (m *RoomMap) Count() int {
	n := 0
	m.rooms.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
