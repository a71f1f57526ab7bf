package schema

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invopop/yaml"
	"github.com/spf13/afero"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

// Fs is the underlying filesystem to use for reading configuration. OS FS by default
var Fs = afero.NewOsFs()

var stdin []byte

// ParseConfig reads a configuration file.
func ParseConfig(filename string) (v1.Config, error) {
	noconfig := v1.Config{}
	buf, err := ReadConfiguration(filename)
	if err != nil {
		return noconfig, fmt.Errorf("read assemble config: %w", err)
	}
	return parseConfig(buf)
}

func parseConfig(buf []byte) (v1.Config, error) {
	var config v1.Config
	err := yaml.Unmarshal(buf, &config, func(d *json.Decoder) *json.Decoder {
		d.DisallowUnknownFields()
		return d
	})
	if err != nil {
		return v1.Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	config.Status.Sha256 = fmt.Sprintf("%x", sha256.Sum256(buf))
	config.Status.Md5 = fmt.Sprintf("%x", md5.Sum(buf))
	return config, nil
}

// ReadConfiguration reads config and returns content
func ReadConfiguration(filePath string) ([]byte, error) {
	switch {
	case filePath == "":
		return nil, errors.New("filename not specified")
	case filePath == "-":
		if len(stdin) == 0 {
			var err error
			stdin, err = io.ReadAll(os.Stdin)
			if err != nil {
				return []byte{}, err
			}
		}
		return stdin, nil
	default:
		if !filepath.IsAbs(filePath) {
			dir, err := os.Getwd()
			if err != nil {
				zap.L().Error("get absolute path for config",
					zap.String("path", filePath),
					zap.Error(err),
				)
				return []byte{}, err
			}
			filePath = filepath.Join(dir, filePath)
		}
		return afero.ReadFile(Fs, filePath)
	}
}
