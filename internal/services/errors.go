package services

import "errors"

// ErrInvalidDropdownType is returned when a vocabulary operation names a
// type other than "division" or "placement".
var ErrInvalidDropdownType = errors.New(`type must be "division" or "placement"`)

// ErrTooManyImages is returned when an upload would push a material past
// the image cap.
var ErrTooManyImages = errors.New("maximum 5 images allowed per material")

// ErrImageNotFound is returned when an image operation names a url not
// present on the material.
var ErrImageNotFound = errors.New("image not found")
