package app

import (
	"go.uber.org/zap"

	"github.com/Blackdeer1524/MiniDB/src/cfg"
)

func NewLogger(env cfg.Environment, level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	var c zap.Config
	if env == cfg.EnvDev {
		c = zap.NewDevelopmentConfig()
	} else {
		c = zap.NewProductionConfig()
	}
	c.Level = lvl

	log, err := c.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}
