package ui

import (
	"github.com/linuxmatters/jivegate/internal/pipeline"
)

// FileStart indicates a worker has picked up a file
type FileStart struct {
	Index      int
	InputPath  string
	OutputPath string
}

// FileProgress reports frames emitted for one file. TotalFrames is 0 when
// the decoder cannot tell the length up front.
type FileProgress struct {
	Index       int
	FramesDone  int64
	TotalFrames int64
}

// FileComplete signals one file has finished, successfully or not
type FileComplete struct {
	Index  int
	Result *pipeline.Result
	Err    error
}

// AllComplete signals the batch has returned
type AllComplete struct{}

// quitMsg is sent when it's time to quit after showing completion
type quitMsg struct{}
