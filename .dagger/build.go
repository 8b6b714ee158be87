package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/vecindex/internal/dagger"
)

// Build and return directory of go binaries.
//
// The cross-compiled matrix is built without cgo, so its binaries carry every
// vector store except sqlitevec. The linux/native-cgo entry is built for the
// host architecture with cgo and includes it.
func (v *Vecindex) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// define build matrix
	gooses := []string{"linux", "darwin"}
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	golang := dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithDirectory("/src", v.Source).
		WithWorkdir("/src")

	for _, goos := range gooses {
		for _, goarch := range goarches {
			// create directory for each OS and architecture
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			// build artifact
			build := golang.
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/vecindex"})

			// add build to outputs
			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	// native cgo build for the host architecture
	path := "linux/native-cgo/"
	cgo := v.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/vecindex"})

	return outputs.WithDirectory(path, cgo.Directory(path))
}

// BuildRelease compiles versioned release binaries with embedded version info
func (v *Vecindex) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/vecindex/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/vecindex/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/vecindex/pkg/utils.Buildtime=%s'", buildtime),
	}

	return v.Build(ctx, strings.Join(ldflags, " "))
}
