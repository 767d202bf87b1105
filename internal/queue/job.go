// Copyright 2025 James Ross
package queue

import "encoding/json"

// EntityType identifies which pipeline a Job routes to.
type EntityType string

const (
	EntityScene    EntityType = "scene"
	EntityWearable EntityType = "wearable"
	EntityEmote    EntityType = "emote"
)

// ProfileData carries the profile-expansion attachment used by the
// wearable/emote pipeline when it is invoked from profile expansion rather
// than a standard content-server fetch (spec.md 4.7 "Profile-attached").
type ProfileData struct {
	GltfHash       string            `json:"gltfHash"`
	GltfFile       string            `json:"gltfFile"`
	ContentMapping map[string]string `json:"contentMapping"`
	ContentBaseURL string            `json:"contentBaseUrl"`
}

// Job is the queue message payload (spec.md 3).
type Job struct {
	EntityID          string       `json:"entityId"`
	EntityType        EntityType   `json:"entityType,omitempty"`
	ContentServerUrls []string     `json:"contentServerUrls"`
	ProfileData       *ProfileData `json:"_profileData,omitempty"`
	Priority          bool         `json:"-"`
}

// ContentBaseURL returns the first content server URL, per spec.md 3.
func (j Job) ContentBaseURL() string {
	if len(j.ContentServerUrls) == 0 {
		return ""
	}
	return j.ContentServerUrls[0]
}

func (j Job) Type() EntityType {
	if j.EntityType == "" {
		return EntityScene
	}
	return j.EntityType
}

func (j Job) Marshal() ([]byte, error) { return json.Marshal(j) }

func UnmarshalJob(b []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(b, &j)
	return j, err
}

// envelope is the notification-over-queue wrapper spec.md 6 describes:
// `{"Message": "<json-escaped Job>"}`. EncodeEnvelope/DecodeEnvelope round
// trip both the wrapped and the bare forms so the dispatcher is robust to
// either producer variation (spec.md 9 "Envelope-in-envelope").
type envelope struct {
	Message string `json:"Message"`
}

// EncodeEnvelope wraps a job payload in the SNS-style envelope.
func EncodeEnvelope(j Job) ([]byte, error) {
	payload, err := j.Marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Message: string(payload)})
}

// DecodeEnvelope accepts either `{"Message": "..."}` or a bare Job and
// returns the decoded Job.
func DecodeEnvelope(raw []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return UnmarshalJob([]byte(env.Message))
	}
	return UnmarshalJob(raw)
}
