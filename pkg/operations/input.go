package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InputFile hands the execution uploads downstream.
type InputFile struct{}

func NewInputFile() *InputFile {
	return &InputFile{}
}

func (*InputFile) Type() string { return "input_file" }

func (*InputFile) Execute(_ context.Context, input Input) (map[string]any, error) {
	return filesOutput(input.Uploads), nil
}

// InputFolder lists every PDF directly inside folder_path.
type InputFolder struct{}

func NewInputFolder() *InputFolder {
	return &InputFolder{}
}

func (*InputFolder) Type() string { return "input_folder" }

func (*InputFolder) Execute(_ context.Context, input Input) (map[string]any, error) {
	folder := input.Text("folder_path")
	if folder == "" {
		return nil, fmt.Errorf("%w: folder_path", ErrMissingParam)
	}

	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("folder does not exist: %s", folder)
	}

	matches, err := filepath.Glob(filepath.Join(folder, "*.pdf"))
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)

	out := filesOutput(matches)
	out["folder"] = folder

	return out, nil
}
