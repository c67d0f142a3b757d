package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL string      `yaml:"baseUrl"`
	Output  string      `yaml:"output"`
	Cache   CacheConfig `yaml:"cache"`
}

type CacheConfig struct {
	Disabled    bool          `yaml:"disabled"`
	DB          string        `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	MemoryLimit int64         `yaml:"memoryLimit"`
	TTL         time.Duration `yaml:"ttl"`
	Compression bool          `yaml:"compression"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
