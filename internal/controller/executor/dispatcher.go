// Package executor 把调度方案翻译为设备命令并投递到设备命令队列
//
// 命令的实际执行由设备代理完成（外部进程），这里只负责生成与投递。
package executor

import (
	"context"
	"fmt"
	"time"

	"shongo-controller/internal/controller/scheduler"
	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/queue"
	"shongo-controller/pkg/logging"
)

// DefaultCommandTimeout 单条命令投递超时
const DefaultCommandTimeout = 5 * time.Second

// AddressedCommand 发往某台设备的命令
type AddressedCommand struct {
	DeviceID string
	Command  *queue.DeviceCommand
}

// Dispatcher 设备命令分发器
type Dispatcher struct {
	queue   queue.DeviceCommandQueue
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewDispatcher 创建分发器，timeout <= 0 时使用 DefaultCommandTimeout
func NewDispatcher(q queue.DeviceCommandQueue, timeout time.Duration, logger *logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = logging.Default("executor")
	}
	return &Dispatcher{queue: q, timeout: timeout, logger: logger, now: time.Now}
}

// PlanCommands 生成执行方案所需的命令
//
// 会议室方案：先向会议室设备发送 create_room，再由每条连接的发起方拨号。
// 直连方案：由发起方直接拨号对端。发起方不是登记设备时无需命令。
func PlanCommands(reservationID string, plan *scheduler.Plan, issuedAt time.Time) []AddressedCommand {
	var cmds []AddressedCommand
	slot := plan.Interval.String()
	roomID := reservationID

	if vr := plan.VirtualRoom; vr != nil {
		var tech string
		if ts := plan.Technologies(); len(ts) > 0 {
			tech = string(ts[0])
		}
		cmds = append(cmds, AddressedCommand{
			DeviceID: vr.Room.ID,
			Command: &queue.DeviceCommand{
				Type:          queue.CommandCreateRoom,
				ReservationID: reservationID,
				RoomID:        roomID,
				PortCount:     vr.PortCount,
				Technology:    tech,
				Slot:          slot,
				IssuedAt:      issuedAt,
			},
		})
	}

	for _, c := range plan.Connections {
		deviceID := c.From.ResourceID()
		if deviceID == "" {
			continue
		}
		endpointID := c.To.ID()
		if plan.VirtualRoom != nil && c.To.ResourceID() == plan.VirtualRoom.Room.ID {
			endpointID = roomID
		}
		cmds = append(cmds, AddressedCommand{
			DeviceID: deviceID,
			Command: &queue.DeviceCommand{
				Type:          queue.CommandDialParticipant,
				ReservationID: reservationID,
				RoomID:        roomID,
				EndpointID:    endpointID,
				Technology:    string(c.Technology),
				Slot:          slot,
				IssuedAt:      issuedAt,
			},
		})
	}
	return cmds
}

// DispatchPlan 投递方案的全部命令，遇到第一个失败即返回
func (d *Dispatcher) DispatchPlan(ctx context.Context, reservationID string, plan *scheduler.Plan) error {
	return d.dispatch(ctx, PlanCommands(reservationID, plan, d.now()))
}

// DispatchDeleteRoom 通知会议室设备删除预约对应的会议室
func (d *Dispatcher) DispatchDeleteRoom(ctx context.Context, r *model.Reservation) error {
	if r.Type != model.ReservationTypeRoom || r.ResourceID == "" {
		return nil
	}
	return d.dispatch(ctx, []AddressedCommand{{
		DeviceID: r.ResourceID,
		Command: &queue.DeviceCommand{
			Type:          queue.CommandDeleteRoom,
			ReservationID: r.ID,
			RoomID:        r.ID,
			Slot:          r.Slot.String(),
			IssuedAt:      d.now(),
		},
	}})
}

func (d *Dispatcher) dispatch(ctx context.Context, cmds []AddressedCommand) error {
	for _, c := range cmds {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		msgID, err := d.queue.PublishDeviceCommand(callCtx, c.DeviceID, c.Command)
		cancel()
		if err != nil {
			return fmt.Errorf("publish %s to %s: %w", c.Command.Type, c.DeviceID, err)
		}
		d.logger.Debug("Device command published",
			"device_id", c.DeviceID,
			"type", string(c.Command.Type),
			"reservation_id", c.Command.ReservationID,
			"message_id", msgID,
		)
	}
	return nil
}
