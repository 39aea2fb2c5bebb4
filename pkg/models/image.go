package models

import "time"

// ProcessImageRequest is the payload for POST /api/process-image
type ProcessImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

// ProcessImageResponse is returned for every outcome of POST /api/process-image
type ProcessImageResponse struct {
	Success       bool   `json:"success"`
	ScreenshotURL string `json:"screenshotUrl,omitempty"`
	Message       string `json:"message,omitempty"`
}

// UploadTask is the per-request unit of work handed to the upload driver
type UploadTask struct {
	ImagePath string
}

// ScreenshotArtifact is a screenshot written once to the output directory
type ScreenshotArtifact struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"-"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}
