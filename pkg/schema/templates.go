package schema

import (
	"os"

	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

const (
	// DefaultBaseImage is used in generated mode when from is empty
	DefaultBaseImage = "busybox:latest"
	// DefaultAssemblyName is the assembly directory name and, prefixed with /, the target dir
	DefaultAssemblyName = "maven"
	// DefaultFilter is the interpolation delimiter spec for Dockerfile mode
	DefaultFilter = "${*}"
	// DockerfileName is the name of the Dockerfile inside context and build dirs
	DockerfileName = "Dockerfile"
)

// ImageFromEnv gets the target image name from a skaffold style custom build invocation
func ImageFromEnv() string {
	image, exists := os.LookupEnv("IMAGE")
	if exists {
		zap.L().Debug("IMAGE env found", zap.String("value", image))
	} else {
		return ""
	}
	return image
}

// IgnoreDefault lists excludes that apply to every file set unless useDefaultExcludes is false
func IgnoreDefault() []string {
	return []string{
		"**/.git",
		"**/.gitignore",
		"**/.gitattributes",
		"**/.svn",
		"**/.hg",
		"**/.DS_Store",
		"**/*~",
		"**/#*#",
		"**/.#*",
	}
}

// ArtifactExtensions are the conventional extensions of a build's final artifact
func ArtifactExtensions() []string {
	return []string{".jar", ".war", ".ear"}
}

// TemplateApp is the config used with -b: the project's target dir as a single layer on base
func TemplateApp(base string) v1.Config {
	return v1.Config{
		Status: v1.ConfigStatus{
			Template: true,
		},
		Images: []v1.ImageConfiguration{
			{
				Name: ImageFromEnv(),
				Build: v1.BuildConfiguration{
					From: base,
					Assembly: &v1.AssemblyConfiguration{
						Name: DefaultAssemblyName,
						FileSets: []v1.FileSet{
							{
								Directory: "target",
								Includes:  []string{"*.jar"},
							},
						},
					},
				},
			},
		},
	}
}
