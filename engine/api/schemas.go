package api

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
	"github.com/spaghettifunk/anima-livelink/engine/recorder"
)

type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
	Sources int    `json:"sources"`
}

type SourceResponse struct {
	GUID      string               `json:"guid"`
	Host      string               `json:"host"`
	Endpoint  string               `json:"endpoint"`
	Index     int                  `json:"index"`
	Prefix    string               `json:"prefix"`
	Status    string               `json:"status"`
	FrameRate float64              `json:"frame_rate"`
	Subjects  int                  `json:"subjects"`
	Metrics   core.MetricsSnapshot `json:"metrics"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type RecorderResponse struct {
	Stats    recorder.Stats            `json:"stats"`
	Subjects []recorder.SubjectSummary `json:"subjects"`
}

// Subject is what the host knows about one registered subject.
type Subject struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Role      string `json:"role"`
	Bones     int    `json:"bones"`
	Frames    uint64 `json:"frames"`
	LastFrame int32  `json:"last_frame"`
}

type SubjectsResponse struct {
	Subjects []Subject `json:"subjects"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SourceView is the part of a live-link source the API reports on.
type SourceView interface {
	GUID() uuid.UUID
	Host() string
	Endpoint() string
	Index() int
	Prefix() string
	IsValid() bool
	FrameRate() livelink.FrameRate
	Metrics() core.MetricsSnapshot
	Subjects() []livelink.Record
}
