package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/turbokube/assemble/pkg/assembly"
	"github.com/turbokube/assemble/pkg/contain"
	"github.com/turbokube/assemble/pkg/resolve"
	"github.com/turbokube/assemble/pkg/schema"
	v1 "github.com/turbokube/assemble/pkg/schema/v1"
	"go.uber.org/zap"
)

const (
	envOutput = "ASSEMBLE_OUTPUT"
	envBase   = "ASSEMBLE_BASE"
)

var (
	BUILD      = "development"
	debug      bool
	version    bool
	loggerMode string
	// config flags
	configPath     string
	base           string
	defines        []string
	propertiesFile string
	propertyMode   string
	outputBase     string
	// execution flags
	workers     int
	parallelism int
	failFast    bool
)

var rootCmd = &cobra.Command{
	Use:          "assemble",
	Short:        "assemble image build contexts",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zap.ReplaceGlobals(newLogger())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if version {
			fmt.Fprintf(os.Stderr, "%s\n", BUILD)
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "x", "x", false, "logs at debug level")
	rootCmd.PersistentFlags().BoolVar(&version, "version", false, "print build version and exit")
	rootCmd.PersistentFlags().StringVar(&loggerMode, "logger", "dev", "log format, dev or plain")

	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newSchemaCmd())
}

// contextArgs accepts an optional context path
func contextArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return errors.New("too many args: at most one context path")
	}
	return nil
}

// addConfigFlags registers the flags shared by commands that run the pipeline
func addConfigFlags(c *cobra.Command) {
	c.Flags().StringVarP(&configPath, "c", "c", "assemble.yaml", "config file path relative to context dir, or - for stdin")
	c.Flags().StringVarP(&base, "b", "b", "", fmt.Sprintf("base image for a config from template, env %s, implies name = $IMAGE", envBase))
	c.Flags().StringArrayVarP(&defines, "D", "D", nil, "property key=value, for example -D image.from=busybox:1, repeatable")
	c.Flags().StringVar(&propertiesFile, "properties", "", "properties file, key=value per line, project properties for Dockerfile interpolation")
	c.Flags().StringVar(&propertyMode, "property-mode", "override", "how properties relate to config: only, override, fallback, skip")
	c.Flags().StringVarP(&outputBase, "output", "o", "", fmt.Sprintf("output base relative to context dir, env %s, default %s/docker", envOutput, assembly.DefaultOutputDir))
	c.Flags().IntVar(&workers, "workers", 0, "file copy parallelism per image, 0 for number of CPUs")
	c.Flags().IntVar(&parallelism, "parallelism", 0, "images built concurrently, 0 for all")
	c.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining images after the first failure")
}

// contextDir resolves the optional context path argument to an absolute directory
func contextDir(args []string) (string, error) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("absolute path for %s: %w", dir, err)
	}
	stat, err := schema.Fs.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("context path not found: %w", err)
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("context path not a directory: %s", abs)
	}
	return abs, nil
}

// parseDefines parses -D values, a key without = is set to true
func parseDefines(defs []string) (map[string]string, error) {
	props := make(map[string]string, len(defs))
	for _, d := range defs {
		k, v, found := strings.Cut(d, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, schema.ConfigError("D", d, "must be key=value")
		}
		if !found {
			v = "true"
		}
		props[k] = v
	}
	return props, nil
}

func loadConfig(dir string) (v1.Config, error) {
	if base == "" && os.Getenv(envBase) != "" {
		base = os.Getenv(envBase)
		zap.L().Debug("base from env")
	}
	path := configPath
	if path != "-" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	config, err := schema.ParseConfig(path)
	if err != nil {
		zap.L().Debug("config parse failed, expected if invoked with -b", zap.Error(err), zap.String("path", path), zap.String("-b", base))
		if base == "" {
			return v1.Config{}, fmt.Errorf("start requires config or base + env: %w", err)
		}
		zap.L().Info("config from template", zap.String("base", base))
		return schema.TemplateApp(base), nil
	}
	if base != "" {
		for i := range config.Images {
			if config.Images[i].Build.From != "" {
				config.Status.Overrides.Base = true
			}
			config.Images[i].Build.From = base
		}
	}
	for i := range config.Images {
		if config.Images[i].Name != "" {
			continue
		}
		name, err := imageFromEnv()
		if err != nil {
			return v1.Config{}, err
		}
		config.Images[i].Name = name
	}

	aboutConfig := []zap.Field{
		zap.String("md5", config.Status.Md5),
		zap.String("sha256", config.Status.Sha256),
		zap.Int("images", len(config.Images)),
	}
	if config.Status.Overrides.Base {
		aboutConfig = append(aboutConfig, zap.Bool("overriddenBase", true))
	}
	zap.L().Info("config", aboutConfig...)
	return config, nil
}

func imageFromEnv() (string, error) {
	if image := schema.ImageFromEnv(); image != "" {
		return image, nil
	}
	repo, repoExists := os.LookupEnv("IMAGE_REPO")
	tag, tagExists := os.LookupEnv("IMAGE_TAG")
	if repoExists && tagExists {
		name := fmt.Sprintf("%s:%s", repo, tag)
		zap.L().Debug("read IMAGE_REPO and IMAGE_TAG env", zap.String("name", name))
		return name, nil
	}
	return "", fmt.Errorf("%w: image name must be set, or env IMAGE, or envs IMAGE_REPO and IMAGE_TAG", schema.ErrConfiguration)
}

// setup reads configuration, project and options for a context dir
func setup(args []string) (v1.Config, assembly.Project, contain.Options, error) {
	dir, err := contextDir(args)
	if err != nil {
		return v1.Config{}, assembly.Project{}, contain.Options{}, err
	}
	config, err := loadConfig(dir)
	if err != nil {
		return v1.Config{}, assembly.Project{}, contain.Options{}, err
	}
	props, err := parseDefines(defines)
	if err != nil {
		return v1.Config{}, assembly.Project{}, contain.Options{}, err
	}
	mode, err := resolve.ParsePropertyMode(propertyMode)
	if err != nil {
		return v1.Config{}, assembly.Project{}, contain.Options{}, err
	}
	project := assembly.Project{BaseDir: dir}
	if propertiesFile != "" {
		p := propertiesFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if project.Properties, err = godotenv.Read(p); err != nil {
			return v1.Config{}, assembly.Project{}, contain.Options{}, fmt.Errorf("properties file %s: %w", p, err)
		}
		zap.L().Debug("properties", zap.String("path", p), zap.Int("count", len(project.Properties)))
	}

	output := outputBase
	if output == "" {
		output = os.Getenv(envOutput)
	}
	if output == "" {
		output = filepath.Join(assembly.DefaultOutputDir, "docker")
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}
	opts := contain.Options{
		OutputBase:   output,
		Properties:   props,
		PropertyMode: mode,
		Workers:      workers,
		Parallelism:  parallelism,
		FailFast:     failFast,
		Progress:     newProgress(),
	}
	return config, project, opts, nil
}
