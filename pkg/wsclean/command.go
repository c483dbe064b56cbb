// Package wsclean builds invocations of the wsclean imager.
//
// Nothing in this package runs processes. Commands are values, to be run by a sandbox.Runner.
package wsclean

import (
	"strconv"

	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	"github.com/glass-survey/glass-image/pkg/options"
	"github.com/glass-survey/glass-image/pkg/utils/shell"
)

// Command is an invocation of wsclean.
type Command struct {
	// Args is the argument list, starting with "wsclean".
	Args []string

	// Stem is the prefix of names of product files.
	Stem string

	// ChannelsOut is the number of output channels, which decides product names.
	ChannelsOut int
}

// String returns the command line, quoted for POSIX shells.
func (c Command) String() string {
	return shell.Quote(c.Args)
}

// CleanMaskName returns the name of the pre-supplied clean mask of the field.
//
// The file is placed in the working directory.
func CleanMaskName(field string) string {
	return field + "_clean_mask.fits"
}

// Stem returns the product name prefix for the options.
//
// The same field and options always yield the same stem,
// and stems of different rounds never collide.
func Stem(field string, o options.WSClean) string {
	stem := field +
		"_psfw" + strconv.Itoa(o.PSFWindow) +
		"_mt" + ftoa(o.MaskThresh) +
		"_at" + ftoa(o.AutoThresh) +
		"_r" + strconv.Itoa(o.Round)
	if o.FitsMask {
		stem += "_fitsmask"
	}
	return stem
}

// Build returns the imaging command for the dataset.
//
// Paths in the command are relative to the working directory of p.
func Build(p pointing.Pointing, o options.WSClean) Command {
	stem := Stem(p.Field, o)

	args := []string{
		"wsclean",
		"-abs-mem", ftoa(o.AbsMem),
		"-mgain", ftoa(o.MGain),
		"-nmiter", strconv.Itoa(o.NMIter),
		"-niter", strconv.Itoa(o.NIter),
		"-local-rms",
		"-local-rms-window", strconv.Itoa(o.PSFWindow),
		"-auto-threshold", ftoa(o.AutoThresh),
	}

	if o.FitsMask {
		args = append(args, "-fits-mask", CleanMaskName(p.Field))
	} else {
		args = append(
			args,
			"-auto-mask", ftoa(o.MaskThresh),
			"-force-mask-rounds", strconv.Itoa(o.ForceMask),
		)
	}

	if o.Multiscale {
		args = append(args, "-multiscale")
	}
	if 0 < o.FitSpectralPol {
		args = append(args, "-fit-spectral-pol", strconv.Itoa(o.FitSpectralPol))
	}

	size := strconv.Itoa(o.Size)
	args = append(
		args,
		"-name", stem,
		"-size", size, size,
		"-scale", o.Scale,
		"-weight", "briggs", ftoa(o.Robust),
		"-pol", "I",
		"-use-wgridder",
	)
	if 1 < o.ChannelsOut {
		args = append(args, "-join-channels")
	}
	args = append(
		args,
		"-channels-out", strconv.Itoa(o.ChannelsOut),
		"-data-column", o.DataColumn,
		"-log-time",
		p.MS,
	)

	return Command{Args: args, Stem: stem, ChannelsOut: o.ChannelsOut}
}

// HeaderCommand returns a cheap imaging command, producing a dirty image
// which has the pixel grid and coordinates of images by o.
//
// Its products are single channel, named with the stem "<field>_header".
func HeaderCommand(p pointing.Pointing, o options.WSClean) Command {
	stem := p.Field + "_header"
	size := strconv.Itoa(o.Size)
	args := []string{
		"wsclean",
		"-abs-mem", ftoa(o.AbsMem),
		"-niter", "0",
		"-name", stem,
		"-size", size, size,
		"-scale", o.Scale,
		"-weight", "briggs", ftoa(o.Robust),
		"-pol", "I",
		"-use-wgridder",
		"-channels-out", "1",
		"-data-column", o.DataColumn,
		"-no-update-model-required",
		"-log-time",
		p.MS,
	}
	return Command{Args: args, Stem: stem, ChannelsOut: 1}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
