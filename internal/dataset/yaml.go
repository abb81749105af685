package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DescriptorName is the file name trainers look for at the dataset root.
const DescriptorName = "dataset.yaml"

// Descriptor is the detector dataset description consumed by the trainer.
// Train and Val are relative to Path.
type Descriptor struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Names map[int]string `yaml:"names"`
}

// NewDescriptor describes the images/{train,val} layout under root.
func NewDescriptor(root string, names []string) Descriptor {
	m := make(map[int]string, len(names))
	for i, n := range names {
		m[i] = n
	}
	return Descriptor{
		Path:  root,
		Train: filepath.Join("images", "train"),
		Val:   filepath.Join("images", "val"),
		Names: m,
	}
}

// WriteDescriptor writes d to <d.Path>/dataset.yaml and returns the file path.
func WriteDescriptor(d Descriptor) (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", DescriptorName, err)
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", d.Path, err)
	}
	path := filepath.Join(d.Path, DescriptorName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ReadDescriptor loads a dataset.yaml.
func ReadDescriptor(path string) (Descriptor, error) {
	var d Descriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return d, nil
}
