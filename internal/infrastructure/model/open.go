package model

import (
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

// Source selects where the classifier comes from. Path wins over URL.
type Source struct {
	Path     string
	Checksum string

	URL    string
	Remote RemoteConfig
}

// Open builds the classifier described by src. It returns (nil, nil) when no
// source is configured, so callers get the formula strategy only.
func Open(src Source, log *logger.Logger) (risk.Classifier, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch {
	case src.Path != "":
		c, err := LoadLocalClassifier(src.Path, src.Checksum)
		if err != nil {
			return nil, err
		}
		name, version, checksum := c.Describe()
		log.Info("risk model loaded",
			logger.String("source", "file"),
			logger.String("name", name),
			logger.String("version", version),
			logger.String("checksum", checksum),
		)
		return c, nil
	case src.URL != "":
		cfg := src.Remote
		cfg.BaseURL = src.URL
		if cfg.Logger == nil {
			cfg.Logger = log
		}
		log.Info("risk model server configured", logger.String("source", "remote"), logger.String("url", src.URL))
		return NewRemoteClassifier(cfg), nil
	}
	log.Info("no risk model configured, using formula only")
	return nil, nil
}
