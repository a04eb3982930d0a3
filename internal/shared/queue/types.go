// Package queue 消息队列类型定义
package queue

import (
	"time"
)

// ============================================================================
// 消息类型
// ============================================================================

// CommandType 设备命令类型
type CommandType string

const (
	CommandCreateRoom      CommandType = "create_room"
	CommandDialParticipant CommandType = "dial_participant"
	CommandDeleteRoom      CommandType = "delete_room"
)

// DeviceCommand 设备命令
type DeviceCommand struct {
	Type          CommandType `json:"type"`
	ReservationID string      `json:"reservation_id"`
	RoomID        string      `json:"room_id"`
	EndpointID    string      `json:"endpoint_id,omitempty"`
	PortCount     int         `json:"port_count,omitempty"`
	Technology    string      `json:"technology,omitempty"`
	Slot          string      `json:"slot,omitempty"`
	IssuedAt      time.Time   `json:"issued_at"`
}

// DeviceCommandMessage 队列中的设备命令消息
type DeviceCommandMessage struct {
	ID      string
	Command *DeviceCommand
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// 设备命令流 devices:{deviceID}:commands
	KeyDeviceCommands       = "devices:"
	KeyDeviceCommandsSuffix = ":commands"

	// 消费者组
	DeviceAgentConsumerGroup = "device_agents"

	// 每台设备流的最大长度
	MaxDeviceStreamLength = 1000
)

// DeviceCommandsKey 设备命令流的 Key
func DeviceCommandsKey(deviceID string) string {
	return KeyDeviceCommands + deviceID + KeyDeviceCommandsSuffix
}
