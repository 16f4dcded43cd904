package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderExists is returned when creating a provider whose name is taken
	ErrProviderExists = errors.New("provider already exists")

	// ErrOverrideNotFound is returned when a user has no routing override
	ErrOverrideNotFound = errors.New("customer override not found")
)
