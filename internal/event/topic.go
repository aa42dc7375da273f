package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Topic names a subscription: "mission:<id>" or "drone:<id>".
type Topic string

const (
	missionPrefix = "mission:"
	dronePrefix   = "drone:"
)

func MissionTopic(id string) Topic { return Topic(missionPrefix + id) }
func DroneTopic(id string) Topic   { return Topic(dronePrefix + id) }

// Mission returns the mission id if t is a mission topic.
func (t Topic) Mission() (string, bool) {
	return strings.CutPrefix(string(t), missionPrefix)
}

// Drone returns the drone id if t is a drone topic.
func (t Topic) Drone() (string, bool) {
	return strings.CutPrefix(string(t), dronePrefix)
}

// Control message names sent by the client.
const (
	JoinMission      = "join-mission"
	LeaveMission     = "leave-mission"
	SubscribeDrone   = "subscribe-drone"
	UnsubscribeDrone = "unsubscribe-drone"
)

// Control is a client to server subscription message. Data is the entity id.
type Control struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// SubscribeControl returns the message that joins t.
func SubscribeControl(t Topic) (Control, error) {
	if id, ok := t.Mission(); ok && id != "" {
		return Control{Event: JoinMission, Data: id}, nil
	}
	if id, ok := t.Drone(); ok && id != "" {
		return Control{Event: SubscribeDrone, Data: id}, nil
	}
	return Control{}, fmt.Errorf("invalid topic %q", t)
}

// UnsubscribeControl returns the message that leaves t.
func UnsubscribeControl(t Topic) (Control, error) {
	if id, ok := t.Mission(); ok && id != "" {
		return Control{Event: LeaveMission, Data: id}, nil
	}
	if id, ok := t.Drone(); ok && id != "" {
		return Control{Event: UnsubscribeDrone, Data: id}, nil
	}
	return Control{}, fmt.Errorf("invalid topic %q", t)
}

// ParseControl decodes a client frame into its topic and direction.
func ParseControl(b []byte) (t Topic, subscribe bool, err error) {
	var c Control
	if err := json.Unmarshal(b, &c); err != nil {
		return "", false, err
	}
	if c.Data == "" {
		return "", false, fmt.Errorf("control %q without id", c.Event)
	}
	switch c.Event {
	case JoinMission:
		return MissionTopic(c.Data), true, nil
	case LeaveMission:
		return MissionTopic(c.Data), false, nil
	case SubscribeDrone:
		return DroneTopic(c.Data), true, nil
	case UnsubscribeDrone:
		return DroneTopic(c.Data), false, nil
	}
	return "", false, fmt.Errorf("unknown control %q", c.Event)
}
