package vcli

// Response represents a parsed management response.
type Response struct {
	// Status is the numeric status from the header line.
	Status Status

	// Body is the response content without its trailing newline.
	Body []byte
}

// IsSuccess returns true for status 200 only.
func (r *Response) IsSuccess() bool {
	return r.Status == StatusOK
}

// IsAuthChallenge returns true when the daemon requires authentication.
// The body starts with the challenge.
func (r *Response) IsAuthChallenge() bool {
	return r.Status == StatusAuth
}

// Challenge returns the authentication challenge from a 107 response.
func (r *Response) Challenge() []byte {
	if !r.IsAuthChallenge() || len(r.Body) < ChallengeLength {
		return nil
	}
	return r.Body[:ChallengeLength]
}

func (r *Response) String() string {
	return string(r.Body)
}
