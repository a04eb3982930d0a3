package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_PerDeviceStreams(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.CreateDeviceConsumerGroup(ctx, "mcu-1"))
	id1, err := q.PublishDeviceCommand(ctx, "mcu-1", &DeviceCommand{Type: CommandCreateRoom, RoomID: "room-1", PortCount: 5})
	require.NoError(t, err)
	_, err = q.PublishDeviceCommand(ctx, "mcu-1", &DeviceCommand{Type: CommandDialParticipant, RoomID: "room-1", EndpointID: "ep-1"})
	require.NoError(t, err)
	_, err = q.PublishDeviceCommand(ctx, "mcu-2", &DeviceCommand{Type: CommandDeleteRoom, RoomID: "room-9"})
	require.NoError(t, err)

	n, err := q.GetDeviceQueueLength(ctx, "mcu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := q.ConsumeDeviceCommands(ctx, "mcu-1", "agent", 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id1, msgs[0].ID)
	assert.Equal(t, CommandCreateRoom, msgs[0].Command.Type)
	require.NoError(t, q.AckDeviceCommand(ctx, "mcu-1", msgs[0].ID))

	msgs, err = q.ConsumeDeviceCommands(ctx, "mcu-1", "agent", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ep-1", msgs[0].Command.EndpointID)

	n, err = q.GetDeviceQueueLength(ctx, "mcu-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "设备之间互不影响")
}

func TestMemoryQueue_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryQueue().PublishDeviceCommand(ctx, "mcu-1", &DeviceCommand{Type: CommandCreateRoom})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeviceCommandsKey(t *testing.T) {
	assert.Equal(t, "devices:mcu-1:commands", DeviceCommandsKey("mcu-1"))
}

func TestNoOpQueue(t *testing.T) {
	q := NewNoOpQueue()
	msgs, err := q.ConsumeDeviceCommands(context.Background(), "d", "c", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, q.Close())
}
