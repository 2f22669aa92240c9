// Package wire defines the typed payloads pushed by the management API.
//
// Every live frame is one UTF-8 JSON object. Each known topic decodes into a
// dedicated update type; unknown topics fall back to RawUpdate so forward
// compatibility does not require a client release. Decode failures are
// reported as *ParseError and never panic.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/rickb777/date"
)

// Known topic names exposed by the management API.
const (
	TopicDashboard = "dashboard"
	TopicBots      = "bots"
	TopicServices  = "services"
	TopicDreams    = "dreams"
	TopicBlog      = "blog"
	TopicServer    = "server"
)

// Update is a decoded live frame for one topic.
type Update interface {
	// UpdateTopic returns the topic this update belongs to.
	UpdateTopic() string
}

// ParseError reports a frame that could not be decoded for a topic.
// The channel drops such frames and stays connected.
type ParseError struct {
	Topic string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: cannot decode frame for topic %q: %v", e.Topic, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BotState describes one managed bot process.
type BotState struct {
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Uptime   int64  `json:"uptime,omitempty"` // seconds
	LastExit string `json:"last_exit,omitempty"`
}

// BotsUpdate is pushed on the "bots" topic.
type BotsUpdate struct {
	Bots []BotState `json:"bots"`
}

func (u BotsUpdate) UpdateTopic() string { return TopicBots }

// ServiceState describes one containerized service.
type ServiceState struct {
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
	State  string `json:"state"`
	Health string `json:"health,omitempty"`
}

// ServicesUpdate is pushed on the "services" topic.
type ServicesUpdate struct {
	Services []ServiceState `json:"services"`
}

func (u ServicesUpdate) UpdateTopic() string { return TopicServices }

// DreamPod describes one GPU worker pod.
type DreamPod struct {
	Name           string  `json:"name"`
	Phase          string  `json:"phase"`
	GPU            string  `json:"gpu,omitempty"`
	UtilizationPct float64 `json:"utilization_pct,omitempty"`
}

// DreamsUpdate is pushed on the "dreams" topic.
type DreamsUpdate struct {
	Pods []DreamPod `json:"pods"`
}

func (u DreamsUpdate) UpdateTopic() string { return TopicDreams }

// BlogPost describes one post on the blog backend.
type BlogPost struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Published bool      `json:"published"`
	// PublishedOn is the calendar date the post went live, zero for drafts.
	PublishedOn date.Date `json:"published_on,omitempty"`
}

// BlogUpdate is pushed on the "blog" topic.
type BlogUpdate struct {
	Posts  []BlogPost `json:"posts"`
	Drafts int        `json:"drafts"`
}

func (u BlogUpdate) UpdateTopic() string { return TopicBlog }

// ServerUpdate is pushed on the "server" topic with host-level stats.
type ServerUpdate struct {
	Hostname    string  `json:"hostname"`
	CPUPct      float64 `json:"cpu_pct"`
	MemUsedMB   int64   `json:"mem_used_mb"`
	MemTotalMB  int64   `json:"mem_total_mb"`
	DiskUsedPct float64 `json:"disk_used_pct"`
	UptimeSecs  int64   `json:"uptime_secs"`
}

func (u ServerUpdate) UpdateTopic() string { return TopicServer }

// DashboardUpdate is pushed on the "dashboard" topic and aggregates the
// headline numbers of every other domain.
type DashboardUpdate struct {
	RunningBots    int           `json:"running_bots"`
	TotalBots      int           `json:"total_bots"`
	ServicesUp     int           `json:"services_up"`
	ActiveDreams   int           `json:"active_dreams"`
	PublishedPosts int           `json:"published_posts"`
	Server         *ServerUpdate `json:"server,omitempty"`
}

func (u DashboardUpdate) UpdateTopic() string { return TopicDashboard }

// RawUpdate carries the payload of a topic this client has no dedicated type
// for. Fields is the parsed JSON object.
type RawUpdate struct {
	Topic  string
	Fields map[string]any
}

func (u RawUpdate) UpdateTopic() string { return u.Topic }

// Decode parses one live frame for the given topic.
//
// A frame that is not a JSON object, or that does not match the topic's
// schema, yields a *ParseError. The caller is expected to drop the frame;
// a single malformed message must never break the channel.
func Decode(topic string, frame []byte) (Update, error) {
	decode := func(v any) error {
		return json.Unmarshal(frame, v)
	}

	switch topic {
	case TopicDashboard:
		var u DashboardUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	case TopicBots:
		var u BotsUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	case TopicServices:
		var u ServicesUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	case TopicDreams:
		var u DreamsUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	case TopicBlog:
		var u BlogUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	case TopicServer:
		var u ServerUpdate
		if err := decode(&u); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		return u, nil
	default:
		var fields map[string]any
		if err := json.Unmarshal(frame, &fields); err != nil {
			return nil, &ParseError{Topic: topic, Err: err}
		}
		if fields == nil {
			return nil, &ParseError{Topic: topic, Err: fmt.Errorf("frame is not a JSON object")}
		}
		return RawUpdate{Topic: topic, Fields: fields}, nil
	}
}
