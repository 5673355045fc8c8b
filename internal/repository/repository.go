// Package repository holds what every job registry backend shares.
package repository

import "errors"

var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)
