package pubsub

// Channel carrying broadcaster live/offline transitions between hub instances.
const ChannelLiveStatus = "hub:live_status"

// Event types.
const (
	EventLiveStatus = "live_status"
)

// LiveStatusPayload mirrors the admin-live-status event a hub instance
// emitted to its own clients.
type LiveStatusPayload struct {
	RoomID    string `json:"room_id"`
	IsLive    bool   `json:"is_live"`
	AdminName string `json:"admin_name,omitempty"`
}
