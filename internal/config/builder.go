package config

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
)

type builder struct {
	configs []*Config
	err     error
}

func newBuilder() *builder {
	return &builder{configs: make([]*Config, 0, 3)}
}

func (b *builder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building config: %w", b.err)
	}

	cfg := new(Config)
	for _, src := range b.configs {
		if err := mergo.Merge(cfg, src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	return cfg, cfg.validate()
}

func (b *builder) withDefaults() *builder {
	b.configs = append(b.configs, Default())
	return b
}

func (b *builder) withFile(dir string) *builder {
	if dir == "" {
		return b
	}
	fileCfg, err := parseFile(dir)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	if fileCfg != nil {
		b.configs = append(b.configs, fileCfg)
	}
	return b
}

func (b *builder) withEnv() *builder {
	envCfg := &Config{}
	if err := parseEnv(envCfg); err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	b.configs = append(b.configs, envCfg)
	return b
}
