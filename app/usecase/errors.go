package usecase

import "errors"

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrUnknownTask  = errors.New("unknown task")
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotActive = errors.New("job is already finished")
)
