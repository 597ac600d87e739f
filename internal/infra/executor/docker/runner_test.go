package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageTags(t *testing.T) {
	r := NewRunner(RegistryRef{Repository: "registry.example.com/acme/nasa-apod"})

	tags := r.imageTags("a1b2c3d4", nil)
	assert.Equal(t, []string{
		"registry.example.com/acme/nasa-apod:latest",
		"registry.example.com/acme/nasa-apod:a1b2c3d4",
	}, tags)

	// without a commit only latest is tagged
	assert.Equal(t, []string{"registry.example.com/acme/nasa-apod:latest"}, r.imageTags("", nil))

	// stage-level tags replace the defaults
	assert.Equal(t,
		[]string{"registry.example.com/acme/nasa-apod:v1.2.0"},
		r.imageTags("a1b2c3d4", []string{"v1.2.0"}))
}

func TestCommitImage(t *testing.T) {
	r := NewRunner(RegistryRef{Repository: "registry.example.com/acme/nasa-apod"})
	assert.Equal(t, "registry.example.com/acme/nasa-apod:a1b2c3d4", r.commitImage("a1b2c3d4"))
	assert.Equal(t, "registry.example.com/acme/nasa-apod:latest", r.commitImage(""))
}

func TestRegistryHost(t *testing.T) {
	assert.Equal(t, "registry.example.com", registryHost("registry.example.com/acme/nasa-apod"))
	assert.Equal(t, "ghcr.io", registryHost("ghcr.io/acme/app"))
	assert.Equal(t, "localhost:5000", registryHost("localhost:5000/app"))
	assert.Equal(t, "nasa-apod", registryHost("nasa-apod"))
}
