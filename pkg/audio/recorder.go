package audio

import "context"

// Recorder captures the human's microphone between Start and Stop.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop ends the capture and returns the path of the recorded file.
	Stop() (string, error)
}
