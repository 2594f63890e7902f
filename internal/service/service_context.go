package service

import (
	"stimrun/internal/config"
	"stimrun/internal/input"
	"stimrun/internal/log"
)

type ServiceContext struct {
	Config   *config.Config
	Progress *Progress
	Abort    *input.Flag
	Sessions *SessionRunner
}

func NewServiceContext(cfg *config.Config, dev Device, logger *log.Logger) *ServiceContext {
	progress := NewProgress()
	abort := &input.Flag{}
	return &ServiceContext{
		Config:   cfg,
		Progress: progress,
		Abort:    abort,
		Sessions: NewSessionRunner(cfg, dev, progress, abort, logger),
	}
}
