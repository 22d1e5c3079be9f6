package stt

import "errors"

var (
	// ErrNoProviderAvailable indicates no registered provider could serve the request
	ErrNoProviderAvailable = errors.New("no speech-to-text provider available")

	// ErrEmptyAudio indicates the audio payload was empty
	ErrEmptyAudio = errors.New("empty audio payload")
)
