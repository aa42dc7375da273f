package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneops-console/internal/fleet"
)

func TestDecodeTelemetryPartial(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"drone-telemetry","data":{"droneId":"d1","batteryLevel":42.5},"ts":"2025-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, DroneTelemetry, ev.Kind)
	assert.Equal(t, "d1", ev.DroneID)
	require.NotNil(t, ev.BatteryLevel)
	assert.Equal(t, 42.5, *ev.BatteryLevel)
	assert.Nil(t, ev.Position)
	assert.Equal(t, DroneTopic("d1"), ev.Topic())
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.Time)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"event":"mission-exploded","data":{"missionId":"m1"}}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = Decode([]byte(`{"event":"mission-progress","data":{"percentComplete":10}}`))
	assert.True(t, errors.Is(err, ErrMissingSubject))

	_, err = Decode([]byte(`{"event":"drone-telemetry","data":{}}`))
	assert.True(t, errors.Is(err, ErrMissingSubject))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeDecodeKeepsPayload(t *testing.T) {
	in := Event{
		Kind: MissionProgress,
		Time: time.Unix(100, 0).UTC(),
		Payload: Payload{
			MissionID:              "m1",
			PercentComplete:        Float(55),
			EstimatedTimeRemaining: Float(120),
		},
	}
	b, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTopicRouting(t *testing.T) {
	assert.Equal(t, MissionTopic("m1"), Event{Kind: MissionCompleted, Payload: Payload{MissionID: "m1", DroneID: "d1"}}.Topic())
	assert.Equal(t, MissionTopic("m1"), Event{Kind: DroneAlert, Payload: Payload{MissionID: "m1", DroneID: "d1"}}.Topic())
	assert.Equal(t, DroneTopic("d1"), Event{Kind: DroneAlert, Payload: Payload{DroneID: "d1"}}.Topic())
}

func TestKindStatusMapping(t *testing.T) {
	s, ok := MissionResumed.MissionStatus()
	require.True(t, ok)
	assert.Equal(t, fleet.MissionInProgress, s)
	_, ok = MissionProgress.MissionStatus()
	assert.False(t, ok)

	k, ok := KindFor(fleet.MissionPaused, fleet.MissionInProgress)
	require.True(t, ok)
	assert.Equal(t, MissionResumed, k)
	k, _ = KindFor(fleet.MissionScheduled, fleet.MissionInProgress)
	assert.Equal(t, MissionStarted, k)
}

func TestControlMessages(t *testing.T) {
	c, err := SubscribeControl(MissionTopic("m1"))
	require.NoError(t, err)
	assert.Equal(t, Control{Event: JoinMission, Data: "m1"}, c)

	c, err = UnsubscribeControl(DroneTopic("d7"))
	require.NoError(t, err)
	assert.Equal(t, Control{Event: UnsubscribeDrone, Data: "d7"}, c)

	_, err = SubscribeControl(Topic("bogus"))
	assert.Error(t, err)

	topic, sub, err := ParseControl([]byte(`{"event":"leave-mission","data":"m3"}`))
	require.NoError(t, err)
	assert.False(t, sub)
	assert.Equal(t, MissionTopic("m3"), topic)
}
