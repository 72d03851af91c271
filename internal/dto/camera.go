package dto

import (
	"errors"
	"strings"
)

// StartRequest is the body of POST /api/cameras/start.
type StartRequest struct {
	LocationID    string `json:"location_id"`
	ModelID       string `json:"model_id"`
	Direction     string `json:"direction"`
	CameraIndices []int  `json:"camera_indices,omitempty"`
	USBOnly       *bool  `json:"usb_only,omitempty"`
}

// SkipBuiltin reports whether probing should leave out the built-in camera
// (index 0). It defaults to true.
func (r StartRequest) SkipBuiltin() bool {
	return r.USBOnly == nil || *r.USBOnly
}

var (
	ErrMissingLocation = errors.New("location_id is required")
	ErrBadDirection    = errors.New("direction must be 'in' or 'out'")
)

// Normalize trims the request and applies the default direction ("in").
func (r *StartRequest) Normalize() error {
	r.LocationID = strings.TrimSpace(r.LocationID)
	r.ModelID = strings.TrimSpace(r.ModelID)
	r.Direction = strings.ToLower(strings.TrimSpace(r.Direction))

	if r.LocationID == "" {
		return ErrMissingLocation
	}
	switch r.Direction {
	case "":
		r.Direction = "in"
	case "in", "out":
	default:
		return ErrBadDirection
	}
	return nil
}

// StartResponse lists the opened cameras and where to read their frames.
type StartResponse struct {
	Opened     []int    `json:"opened"`
	Streams    []string `json:"streams"`
	Generation uint64   `json:"generation"`
	LocationID string   `json:"location_id"`
}

type CamerasResponse struct {
	Available []int `json:"available"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
