package v1

// Config is the root of an assemble.yaml
type Config struct {
	Status ConfigStatus         `json:"-"`
	Images []ImageConfiguration `json:"images,omitempty"`
}

type ConfigStatus struct {
	Template  bool   // true if config is from a template
	Md5       string // config source md5 (not for template)
	Sha256    string // config source sha256 (not for template)
	Overrides ConfigOverrides
}

type ConfigOverrides struct {
	Base bool
}

type ImageConfiguration struct {
	// Name is the image reference, also used to derive the build directories
	Name string `json:"name"`
	// Alias is a shortcut name used in log output
	Alias string             `json:"alias,omitempty"`
	Build BuildConfiguration `json:"build,omitempty"`
}

// Description returns alias if set, name otherwise
func (i ImageConfiguration) Description() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Name
}

type BuildConfiguration struct {
	// From is the base image reference, busybox:latest if empty in generated mode
	From       string `json:"from,omitempty"`
	Maintainer string `json:"maintainer,omitempty"`
	// Dockerfile is a user supplied Dockerfile, relative to ContextDir if set
	Dockerfile string `json:"dockerFile,omitempty"`
	// DockerArchive is a prebuilt image archive, mutually exclusive with Dockerfile
	DockerArchive string `json:"dockerArchive,omitempty"`
	// ContextDir is the build context for Dockerfile mode
	ContextDir string `json:"contextDir,omitempty"`
	// Filter configures interpolation delimiters for Dockerfile mode, default ${*}, "false" to disable
	Filter   string                 `json:"filter,omitempty"`
	Assembly *AssemblyConfiguration `json:"assembly,omitempty"`

	Env       map[string]string `json:"env,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	Ports     []string          `json:"ports,omitempty"`
	Volumes   []string          `json:"volumes,omitempty"`
	RunCmds   []string          `json:"runCmds,omitempty"`
	CacheFrom []string          `json:"cacheFrom,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Platforms []string          `json:"platforms,omitempty"`

	Workdir     string       `json:"workdir,omitempty"`
	User        string       `json:"user,omitempty"`
	Entrypoint  *Arguments   `json:"entryPoint,omitempty"`
	Cmd         *Arguments   `json:"cmd,omitempty"`
	HealthCheck *HealthCheck `json:"healthCheck,omitempty"`

	// Cleanup is one of try, remove, none
	Cleanup string `json:"cleanup,omitempty"`
	// Compression is one of none, gzip, bzip2
	Compression string `json:"compression,omitempty"`
	// Optimise folds consecutive RUN instructions into one
	Optimise *bool `json:"optimise,omitempty"`
	NoCache  *bool `json:"nocache,omitempty"`
	// ExportTargetDir declares the assembly target dir as a VOLUME.
	// Defaults to true when From is empty and the target dir is not /.
	ExportTargetDir *bool `json:"exportTargetDir,omitempty"`
}

// Arguments is either shell form or exec form, exactly one must be set
type Arguments struct {
	Shell string   `json:"shell,omitempty"`
	Exec  []string `json:"exec,omitempty"`
}

type HealthCheck struct {
	// Mode is cmd (default when Cmd is set) or none
	Mode        string     `json:"mode,omitempty"`
	Interval    string     `json:"interval,omitempty"`
	Timeout     string     `json:"timeout,omitempty"`
	StartPeriod string     `json:"startPeriod,omitempty"`
	Retries     int        `json:"retries,omitempty"`
	Cmd         *Arguments `json:"cmd,omitempty"`
}

type AssemblyConfiguration struct {
	// Name is the directory name of the assembly in the build context, default maven
	Name string `json:"name,omitempty"`
	// TargetDir is the absolute container path, default /<name>
	TargetDir string `json:"targetDir,omitempty"`
	// User is user, user:group or user:group:runUser
	User string `json:"user,omitempty"`
	// Mode is dir (loose files) or tar (one archive per layer, ADDed)
	Mode string `json:"mode,omitempty"`
	// Permissions is one of ignore, keep, exec, auto
	Permissions string `json:"permissions,omitempty"`
	// TarLongFileMode is one of posix, gnu, warn, fail, truncate
	TarLongFileMode string  `json:"tarLongFileMode,omitempty"`
	Layers          []Layer `json:"layers,omitempty"`
	// FileSets and Files form the implicit layer when Layers is empty
	FileSets []FileSet   `json:"fileSets,omitempty"`
	Files    []FileEntry `json:"files,omitempty"`
	// ExcludeFinalOutputArtifact skips the project artifact default layer
	ExcludeFinalOutputArtifact bool `json:"excludeFinalOutputArtifact,omitempty"`
}

type Layer struct {
	// ID is required when there is more than one layer, blank means root layer
	ID       string      `json:"id,omitempty"`
	FileSets []FileSet   `json:"fileSets,omitempty"`
	Files    []FileEntry `json:"files,omitempty"`
}

// FileSet is a directory with include and exclude patterns
type FileSet struct {
	Directory       string   `json:"directory"`
	OutputDirectory string   `json:"outputDirectory,omitempty"`
	Includes        []string `json:"includes,omitempty"`
	Excludes        []string `json:"excludes,omitempty"`
	// FileMode is an octal string such as 0644
	FileMode string `json:"fileMode,omitempty"`
	// DirectoryMode is an octal string such as 0755
	DirectoryMode      string `json:"directoryMode,omitempty"`
	UseDefaultExcludes *bool  `json:"useDefaultExcludes,omitempty"`
	MaxFiles           int    `json:"maxFiles,omitempty"`
	MaxSize            string `json:"maxSize,omitempty"`
}

// FileEntry is a single source file mapped to a destination
type FileEntry struct {
	Source          string `json:"source"`
	OutputDirectory string `json:"outputDirectory,omitempty"`
	DestName        string `json:"destName,omitempty"`
	FileMode        string `json:"fileMode,omitempty"`
}
