package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

func CreateDirectoryIfNotExists(dirPath string, perm os.FileMode) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, perm)
	}

	return nil
}

func RemoveDirOrFilePathIfExists(dirOrFilePath string) (err error) {
	if _, err = os.Stat(dirOrFilePath); err == nil {
		os.RemoveAll(dirOrFilePath)
	}

	return err
}

func LoadJSON[TReturn any](path string) (*TReturn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer f.Close()

	var value TReturn

	if err := json.NewDecoder(f).Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &value, nil
}

func SaveJSON[T any](path string, value *T, pretty bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	defer f.Close()

	encoder := json.NewEncoder(f)
	if pretty {
		encoder.SetIndent("", "    ")
	}

	return encoder.Encode(value)
}

// LoadConfig loads config from the defined path or, when path is empty,
// from config.json next to the executable.
func LoadConfig[TReturn any](configPath string) (*TReturn, error) {
	if configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			return nil, err
		}

		configPath = path.Join(filepath.Dir(ex), "config.json")
	}

	return LoadJSON[TReturn](configPath)
}
