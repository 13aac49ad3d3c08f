package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// validateConfig validates configuration values for correctness and safe
// directory layout.
func validateConfig(config *Config) error {
	if err := validateInputConfig(&config.Input); err != nil {
		return fmt.Errorf("input config: %w", err)
	}

	if err := validateOutputConfig(&config.Output); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := validateRenderConfig(&config.Render); err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	if err := validateDirectoryLayout(config); err != nil {
		return fmt.Errorf("directory layout: %w", err)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging config: unknown format %q", config.Logging.Format)
	}

	return nil
}

func validateInputConfig(input *InputConfig) error {
	if err := validateDirValue("root", input.Root); err != nil {
		return err
	}

	if !strings.HasPrefix(input.MarkerExt, ".") {
		return fmt.Errorf("marker_ext %q must start with a dot", input.MarkerExt)
	}
	if !strings.HasPrefix(input.ArchiveExt, ".") {
		return fmt.Errorf("archive_ext %q must start with a dot", input.ArchiveExt)
	}
	if input.MarkerExt == input.ArchiveExt {
		return fmt.Errorf("marker_ext and archive_ext must differ")
	}

	if input.Debounce > 30*time.Second {
		return fmt.Errorf("debounce %s is unreasonably long", input.Debounce)
	}
	if input.RescanInterval < time.Second {
		return fmt.Errorf("rescan_interval %s is below the 1s minimum", input.RescanInterval)
	}
	if input.BatchSize > input.QueueCapacity {
		return fmt.Errorf("batch_size %d exceeds queue_capacity %d", input.BatchSize, input.QueueCapacity)
	}
	if input.Workers > 64 {
		return fmt.Errorf("workers %d exceeds the 64 worker ceiling", input.Workers)
	}

	return nil
}

func validateOutputConfig(output *OutputConfig) error {
	for field, dir := range map[string]string{
		"root":        output.Root,
		"archive_dir": output.ArchiveDir,
		"error_dir":   output.ErrorDir,
	} {
		if err := validateDirValue(field, dir); err != nil {
			return err
		}
	}

	if !strings.HasPrefix(output.Extension, ".") {
		return fmt.Errorf("extension %q must start with a dot", output.Extension)
	}

	return nil
}

func validateRenderConfig(render *RenderConfig) error {
	if render.MaxConcurrent > 256 {
		return fmt.Errorf("max_concurrent %d exceeds the 256 permit ceiling", render.MaxConcurrent)
	}
	if render.PermitTimeout < time.Second {
		return fmt.Errorf("permit_timeout %s is below the 1s minimum", render.PermitTimeout)
	}
	if render.MaxBufferBytes > 256*1024*1024 {
		return fmt.Errorf("max_buffer_bytes %d exceeds the 256MiB ceiling", render.MaxBufferBytes)
	}

	return nil
}

func validateDirValue(field, dir string) error {
	if dir == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if strings.Contains(dir, "..") {
		return fmt.Errorf("%s %q contains directory traversal", field, dir)
	}

	return nil
}

// validateDirectoryLayout rejects layouts where processed archives or outputs
// would land back inside the watched input tree, which would re-trigger
// ingestion forever.
func validateDirectoryLayout(config *Config) error {
	inputRoot := filepath.Clean(config.Input.Root)

	for field, dir := range map[string]string{
		"output.root":        config.Output.Root,
		"output.archive_dir": config.Output.ArchiveDir,
		"output.error_dir":   config.Output.ErrorDir,
	} {
		if isWithin(inputRoot, filepath.Clean(dir)) {
			return fmt.Errorf("%s %q is inside the watched input root %q", field, dir, inputRoot)
		}
	}

	return nil
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
