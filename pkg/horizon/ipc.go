package horizon

import (
	"context"
	"errors"
)

// MakeHeader builds an IPC command header word.
func MakeHeader(cmd uint16, normal, translate uint8) uint32 {
	return uint32(cmd)<<16 | uint32(normal&0x3f)<<6 | uint32(translate&0x3f)
}

// ParseHeader splits an IPC command header word.
func ParseHeader(h uint32) (cmd uint16, normal, translate uint8) {
	return uint16(h >> 16), uint8(h>>6) & 0x3f, uint8(h) & 0x3f
}

// Request is one synchronous request received on a service session.
type Request struct {
	Session Handle
	Header  uint32
	Params  []uint32
}

// Command returns the command id of the request.
func (r *Request) Command() uint16 {
	cmd, _, _ := ParseHeader(r.Header)
	return cmd
}

// Notification ids delivered to the service.
const (
	NotificationTermination    uint32 = 0x100
	NotificationSleepRequested uint32 = 0x101
	NotificationGoingToSleep   uint32 = 0x104
	NotificationFullyWakingUp  uint32 = 0x10A
	NotificationLaunchApp      uint32 = 0x110
)

// Event is either a request or a notification. Exactly one of Request and
// Notification is set.
type Event struct {
	Request      *Request
	Notification uint32
}

// Port is the service's side of the IPC layer: it delivers requests and
// notifications one at a time and carries replies back to the caller.
type Port interface {
	Receive(ctx context.Context) (Event, error)
	Reply(req *Request, result error) error
}

// ErrPortClosed is returned by Port implementations once no further events
// will be delivered.
var ErrPortClosed = errors.New("port closed")
