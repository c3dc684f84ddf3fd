package operations

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OutputSave copies its input files into a folder under the output directory.
type OutputSave struct {
	outputDir string
}

func NewOutputSave(outputDir string) *OutputSave {
	return &OutputSave{outputDir: outputDir}
}

func (*OutputSave) Type() string { return "output_save" }

// Execute stores files in <folder>/<execution id>/. The folder parameter is
// resolved inside the output directory and defaults to it.
func (o *OutputSave) Execute(_ context.Context, input Input) (map[string]any, error) {
	folder, err := o.resolveFolder(input.Text("folder"))
	if err != nil {
		return nil, err
	}

	target := filepath.Join(folder, input.ExecutionID)
	if err := os.MkdirAll(target, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	saved := make([]string, 0, len(input.Files))

	for _, src := range input.Files {
		dst := filepath.Join(target, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", filepath.Base(src), err)
		}

		saved = append(saved, dst)
	}

	return map[string]any{
		"saved_files":   saved,
		"output_folder": target,
		"count":         len(saved),
		FilesKey:        saved,
	}, nil
}

func (o *OutputSave) resolveFolder(folder string) (string, error) {
	root, err := filepath.Abs(o.outputDir)
	if err != nil {
		return "", err
	}

	if folder == "" {
		return root, nil
	}

	resolved := folder
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}

	resolved = filepath.Clean(resolved)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("output folder %s is outside %s", folder, root)
	}

	return resolved, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
