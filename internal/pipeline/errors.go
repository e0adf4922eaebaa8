package pipeline

import "errors"

// Structured error codes persisted to VideoJob.Error on Failed jobs (spec §4.7).
var (
	ErrCodecDecodeFailed        = errors.New("CODEC_DECODE_FAILED")
	ErrUploadStreamInterrupted  = errors.New("UPLOAD_STREAM_INTERRUPTED")
	ErrProcessorNodeFault       = errors.New("PROCESSOR_NODE_FAULT")
	ErrIdentityEngineFault      = errors.New("IDENTITY_ENGINE_FAULT")
	ErrSystemFault              = errors.New("SYSTEM_FAULT")
)

// classify maps an arbitrary error from the frame loop to one of the fixed
// codes above, defaulting to SYSTEM_FAULT for anything unrecognized.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrCodecDecodeFailed):
		return ErrCodecDecodeFailed
	case errors.Is(err, ErrUploadStreamInterrupted):
		return ErrUploadStreamInterrupted
	case errors.Is(err, ErrProcessorNodeFault):
		return ErrProcessorNodeFault
	case errors.Is(err, ErrIdentityEngineFault):
		return ErrIdentityEngineFault
	default:
		return ErrSystemFault
	}
}
