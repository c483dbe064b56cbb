package common

import (
	"path/filepath"

	"github.com/glass-survey/glass-image/pkg/images"
	kos "github.com/glass-survey/glass-image/pkg/utils/os"
)

const (
	EnvWSCleanImage = "GLASS_WSCLEAN_IMAGE"
	EnvCASAImage    = "GLASS_CASA_IMAGE"
	EnvImagesDir    = "GLASS_IMAGES_DIR"
	EnvConfig       = "GLASS_CONFIG"

	// EnvCluster is the default of --cluster.
	EnvCluster = "GLASS_CLUSTER_CONFIG"
)

const (
	// SandboxSingularity runs tools in singularity containers.
	SandboxSingularity = "singularity"

	// SandboxHost runs tools on the host (or in the container running glass-image).
	SandboxHost = "host"
)

type CommonFlags struct {
	Workdir      string `flag:"workdir" alias:"w" help:"Working directory where products are written. default: directory of the dataset"`
	WSCleanImage string `flag:"wsclean-image" metavar:"REFERENCE|PATH.sif" help:"Container image of wsclean. A reference is pulled and built into the images directory when missing."`
	CASAImage    string `flag:"casa-image" metavar:"REFERENCE|PATH.sif" help:"Container image of casatasks."`
	ImagesDir    string `flag:"images-dir" help:"Directory where singularity images are cached."`
	Sandbox      string `flag:"sandbox" metavar:"singularity|host" help:"How external tools are run."`
	Config       string `flag:"config" alias:"c" help:"Path to the imaging configuration file. default: built-in configuration"`
	Verbose      bool   `flag:"verbose" alias:"v" help:"Print debug messages."`
}

// Flags returns CommonFlags with default values, read from environment variables.
func Flags() CommonFlags {
	return CommonFlags{
		WSCleanImage: kos.GetEnvOr(EnvWSCleanImage, images.DefaultWSClean),
		CASAImage:    kos.GetEnvOr(EnvCASAImage, images.DefaultCASA),
		ImagesDir:    kos.ExpandHome(kos.GetEnvOr(EnvImagesDir, filepath.Join("~", ".glass-image", "images"))),
		Sandbox:      SandboxSingularity,
		Config:       kos.GetEnvOr(EnvConfig, ""),
	}
}
