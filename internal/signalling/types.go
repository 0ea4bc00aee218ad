package signalling

import (
	"encoding/json"
	"fmt"
)

// Message discriminator values carried in the "janus" field.
const (
	TypeCreate    = "create"
	TypeAttach    = "attach"
	TypeMessage   = "message"
	TypeKeepalive = "keepalive"
	TypeDestroy   = "destroy"

	TypeEvent    = "event"
	TypeSuccess  = "success"
	TypeAck      = "ack"
	TypeError    = "error"
	TypeWebRTCUp = "webrtcup"
	TypeMedia    = "media"
	TypeSlowLink = "slowlink"
	TypeHangup   = "hangup"
)

// Request is the envelope for requests sent to the gateway. SessionID and
// HandleID are zero for session-level verbs such as create.
type Request struct {
	Janus       string         `json:"janus"`
	Transaction string         `json:"transaction"`
	SessionID   uint64         `json:"session_id,omitempty"`
	HandleID    uint64         `json:"handle_id,omitempty"`
	Plugin      string         `json:"plugin,omitempty"`
	Body        map[string]any `json:"body,omitempty"`
}

// Response is the envelope for replies and asynchronous notifications from
// the gateway. Fields are populated depending on the discriminator: data for
// create/attach successes, plugindata for plugin replies and events, error
// for rejected requests, sender/reason for hangups.
type Response struct {
	Janus       string        `json:"janus"`
	Transaction string        `json:"transaction,omitempty"`
	SessionID   uint64        `json:"session_id,omitempty"`
	Sender      uint64        `json:"sender,omitempty"`
	Data        *SessionData  `json:"data,omitempty"`
	PluginData  *PluginData   `json:"plugindata,omitempty"`
	Error       *GatewayError `json:"error,omitempty"`

	// Hangup and media notification fields.
	Reason    string `json:"reason,omitempty"`
	Receiving *bool  `json:"receiving,omitempty"`
	MediaKind string `json:"type,omitempty"`
	Uplink    *bool  `json:"uplink,omitempty"`
	Lost      int64  `json:"lost,omitempty"`
}

// SessionData carries the identifier minted by create and attach.
type SessionData struct {
	ID uint64 `json:"id"`
}

// PluginData wraps a plugin-scoped payload. Data is left raw so callers can
// decode it against the plugin's own schema.
type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// GatewayError is the error object attached to janus:"error" replies.
type GatewayError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Reason)
}

// VideoRoomData is the videoroom plugin payload inside plugindata.data.
// The same shape covers joined confirmations, participant events, and
// rtp_forward replies; unused fields stay at their zero values.
type VideoRoomData struct {
	VideoRoom   string      `json:"videoroom"`
	Room        int64       `json:"room,omitempty"`
	Publishers  []Publisher `json:"publishers,omitempty"`
	PublisherID int64       `json:"publisher_id,omitempty"`
	RTPStream   *RTPStream  `json:"rtp_stream,omitempty"`
	ErrorCode   int         `json:"error_code,omitempty"`
	ErrorReason string      `json:"error,omitempty"`

	// Leaving and Unpublished carry either a feed ID or the string "ok"
	// when the departure is our own, so they stay raw until inspected.
	Leaving     json.RawMessage `json:"leaving,omitempty"`
	Unpublished json.RawMessage `json:"unpublished,omitempty"`
}

// LeavingPublisher returns the feed ID of a departing publisher. The gateway
// reports the recorder's own departure as the string "ok", which carries no
// feed ID; ok is false in that case.
func (d *VideoRoomData) LeavingPublisher() (int64, bool) {
	if id, ok := rawFeedID(d.Leaving); ok {
		return id, true
	}
	return rawFeedID(d.Unpublished)
}

func rawFeedID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// Publisher describes an active feed in a room.
type Publisher struct {
	ID      int64  `json:"id"`
	Display string `json:"display,omitempty"`
}

// RTPStream is the per-forward stream assignment inside rtp_forward replies.
// Stream IDs are pointers because the gateway omits whichever media kind was
// not forwarded.
type RTPStream struct {
	Host          string  `json:"host,omitempty"`
	AudioStreamID *uint64 `json:"audio_stream_id,omitempty"`
	VideoStreamID *uint64 `json:"video_stream_id,omitempty"`
}

// DecodeVideoRoomData decodes the videoroom payload from a plugin reply.
func DecodeVideoRoomData(pd *PluginData) (*VideoRoomData, error) {
	if pd == nil || len(pd.Data) == 0 {
		return nil, fmt.Errorf("plugin reply carries no data")
	}
	var data VideoRoomData
	if err := json.Unmarshal(pd.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding videoroom data: %w", err)
	}
	return &data, nil
}
