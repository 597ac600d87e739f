package pipelines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	p, err := Load("testdata/nasa-apod.yaml")
	require.NoError(t, err)

	assert.Equal(t, "nasa-apod", p.Name)
	require.Len(t, p.Stages, 5)

	build := p.Stage("build")
	require.NotNil(t, build)
	assert.Equal(t, KindBuild, build.Kind)
	assert.Equal(t, []string{"test"}, build.DependsOn)
	require.NotNil(t, build.Build)
	assert.Equal(t, 8000, build.Build.RequirePort)
	assert.Equal(t, "/app/data", build.Build.RequireVolume)
	assert.True(t, build.Build.RequireNonRoot)

	scan := p.Stage("scan")
	require.NotNil(t, scan)
	assert.True(t, scan.SoftFail)

	assert.Nil(t, p.Stage("nope"))
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "stages:\n  - name: a\n    kind: test\n",
			wantErr: "name is required",
		},
		{
			name:    "no stages",
			yaml:    "name: p\n",
			wantErr: "has no stages",
		},
		{
			name:    "duplicate stage",
			yaml:    "name: p\nstages:\n  - name: a\n    kind: test\n  - name: a\n    kind: build\n",
			wantErr: "duplicate stage",
		},
		{
			name:    "unknown kind",
			yaml:    "name: p\nstages:\n  - name: a\n    kind: compile\n",
			wantErr: "unknown kind",
		},
		{
			name:    "unknown dependency",
			yaml:    "name: p\nstages:\n  - name: a\n    kind: test\n    depends_on: [b]\n",
			wantErr: "unknown stage",
		},
		{
			name:    "self dependency",
			yaml:    "name: p\nstages:\n  - name: a\n    kind: test\n    depends_on: [a]\n",
			wantErr: "depends on itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStageGated(t *testing.T) {
	open := Stage{Name: "test", Kind: KindTest}
	assert.True(t, open.Gated("main"))
	assert.True(t, open.Gated("feature/x"))

	gated := Stage{Name: "deploy_image", Kind: KindPush, Only: []string{"main"}}
	assert.True(t, gated.Gated("main"))
	assert.False(t, gated.Gated("develop"))
	assert.False(t, gated.Gated(""))
}
