package schema

import (
	"runtime"
	"strings"
)

type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
)

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "bzip2":
		return CompressionBzip2, nil
	}
	return CompressionNone, ConfigError("compression", s, "must be one of none, gzip, bzip2")
}

// Extension is the archive file suffix including .tar
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionBzip2:
		return ".tar.bz2"
	}
	return ".tar"
}

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	}
	return "none"
}

type Cleanup int

const (
	CleanupTry Cleanup = iota
	CleanupRemove
	CleanupNone
)

func ParseCleanup(s string) (Cleanup, error) {
	switch strings.ToLower(s) {
	case "", "try":
		return CleanupTry, nil
	case "remove":
		return CleanupRemove, nil
	case "none":
		return CleanupNone, nil
	}
	return CleanupTry, ConfigError("cleanup", s, "must be one of try, remove, none")
}

type AssemblyMode int

const (
	AssemblyModeDir AssemblyMode = iota
	AssemblyModeTar
)

func ParseAssemblyMode(s string) (AssemblyMode, error) {
	switch strings.ToLower(s) {
	case "", "dir":
		return AssemblyModeDir, nil
	case "tar":
		return AssemblyModeTar, nil
	}
	return AssemblyModeDir, ConfigError("assembly.mode", s, "must be one of dir, tar")
}

type PermissionMode int

const (
	// PermissionsKeep enforces configured file and directory modes
	PermissionsKeep PermissionMode = iota
	// PermissionsIgnore uses modes as found on disk
	PermissionsIgnore
	// PermissionsExec sets 0755 on all files
	PermissionsExec
)

// ParsePermissionMode resolves auto to exec on windows and keep elsewhere
func ParsePermissionMode(s string) (PermissionMode, error) {
	switch strings.ToLower(s) {
	case "", "keep":
		return PermissionsKeep, nil
	case "ignore":
		return PermissionsIgnore, nil
	case "exec":
		return PermissionsExec, nil
	case "auto":
		if runtime.GOOS == "windows" {
			return PermissionsExec, nil
		}
		return PermissionsKeep, nil
	}
	return PermissionsKeep, ConfigError("assembly.permissions", s, "must be one of ignore, keep, exec, auto")
}

type TarLongFileMode int

const (
	TarLongFilePosix TarLongFileMode = iota
	TarLongFileGnu
	TarLongFileWarn
	TarLongFileFail
	TarLongFileTruncate
)

func ParseTarLongFileMode(s string) (TarLongFileMode, error) {
	switch strings.ToLower(s) {
	case "", "posix":
		return TarLongFilePosix, nil
	case "gnu":
		return TarLongFileGnu, nil
	case "warn":
		return TarLongFileWarn, nil
	case "fail":
		return TarLongFileFail, nil
	case "truncate":
		return TarLongFileTruncate, nil
	}
	return TarLongFilePosix, ConfigError("assembly.tarLongFileMode", s, "must be one of posix, gnu, warn, fail, truncate")
}
