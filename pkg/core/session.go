// pkg/core/session.go
package core

import "time"

// Session is one viewer's connection to a running game.
type Session struct {
	ID           uint      `json:"id"`
	UUID         string    `json:"uuid"`
	ViewerUserID string    `json:"viewerUserId"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime,omitempty"`
	Tag          string    `json:"tag,omitempty"`
}

// UploadMetadata contains session metadata for uploading an archive.
type UploadMetadata struct {
	SessionName string
	Viewer      string
	Duration    float64
	Tag         string
}
