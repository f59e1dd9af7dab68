package keyword

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk keyword list:
//
//	keywords: [help, bachao, "call police"]
//	debounce: 10s
//	restartDelay: 1s
type File struct {
	Keywords     []string      `yaml:"keywords"`
	Debounce     time.Duration `yaml:"debounce"`
	RestartDelay time.Duration `yaml:"restartDelay"`
}

func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read keyword file: %w", err)
	}
	return ParseFile(raw)
}

func ParseFile(raw []byte) (Config, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Config{}, fmt.Errorf("parse keyword file: %w", err)
	}
	kws := normalize(f.Keywords)
	if len(f.Keywords) > 0 && len(kws) == 0 {
		return Config{}, fmt.Errorf("keyword file lists only blank keywords")
	}
	return Config{Keywords: kws, Debounce: f.Debounce, RestartDelay: f.RestartDelay}, nil
}
