package diag

import "fmt"

// DecodeError — the input could not be parsed as an image. This is the one
// fault that crosses the pipeline boundary: nothing can be diagnosed from an
// undecodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// ModelLoadError — the model artifact is missing, corrupt, or declares a
// shape the pipeline cannot serve. The classifier stays available through
// its simulated path.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string { return fmt.Sprintf("load model %s: %v", e.Path, e.Err) }
func (e *ModelLoadError) Unwrap() error { return e.Err }

// ShapeMismatchError — a tensor reached the model with the wrong shape.
// Classifier-internal; converted to a simulated result, never propagated.
type ShapeMismatchError struct {
	Want, Got string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("tensor shape mismatch: want %s, got %s", e.Want, e.Got)
}

// VerificationError — transport, parse, or schema failure from the remote
// verifier. Always handled by the fusion controller.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string { return fmt.Sprintf("remote verification: %v", e.Err) }
func (e *VerificationError) Unwrap() error { return e.Err }
