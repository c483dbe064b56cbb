package faketools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/wsclean"
)

func argOf(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || len(args) <= i+1 {
		return ""
	}
	return args[i+1]
}

// WSClean writes products named after args into root, as wsclean does.
func WSClean(_ context.Context, root string, args ...string) error {
	ms := args[len(args)-1]
	if _, err := os.Stat(filepath.Join(root, ms)); err != nil {
		return &gerrors.ToolFailure{Command: args, ExitCode: 255}
	}
	channels, err := strconv.Atoi(argOf(args, "-channels-out"))
	if err != nil {
		return err
	}
	for _, p := range wsclean.Products(argOf(args, "-name"), channels) {
		if err := os.WriteFile(filepath.Join(root, p.Name), []byte(p.Kind), os.FileMode(0o644)); err != nil {
			return err
		}
	}
	return nil
}

var (
	taskPattern  = regexp.MustCompile(`^from casatasks import (\w+);`)
	paramPattern = regexp.MustCompile(`(\w+)='([^']*)'`)
)

// CASA creates datasets and tables which casatasks write into root.
func CASA(_ context.Context, root string, args ...string) error {
	if len(args) != 3 || args[0] != "python3" || args[1] != "-c" {
		return errors.New("unexpected command")
	}
	m := taskPattern.FindStringSubmatch(args[2])
	if m == nil {
		return errors.New("unexpected script: " + args[2])
	}

	params := map[string]string{}
	for _, p := range paramPattern.FindAllStringSubmatch(args[2], -1) {
		params[p[1]] = p[2]
	}

	switch m[1] {
	case "gaincal":
		return os.Mkdir(filepath.Join(root, params["caltable"]), os.FileMode(0o755))
	case "split", "mstransform":
		return os.Mkdir(filepath.Join(root, params["outputvis"]), os.FileMode(0o755))
	case "importuvfits":
		return os.Mkdir(filepath.Join(root, params["vis"]), os.FileMode(0o755))
	}
	return nil
}

// Miriad creates outputs of miriad tasks, resolving relative paths in root.
//
// FITS images exported by "fits op=xyout" are 4x4 pixels of 0.5.
func Miriad(_ context.Context, root string, args ...string) error {
	if len(args) == 0 {
		return errors.New("no task")
	}
	params := map[string]string{}
	for _, a := range args[1:] {
		k, v, _ := strings.Cut(a, "=")
		params[k] = v
	}
	out := params["out"]
	if out == "" {
		return &gerrors.ToolFailure{Command: args, ExitCode: 1}
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}

	switch {
	case args[0] == "fits" && params["op"] == "uvout":
		return os.WriteFile(out, []byte("uvfits"), os.FileMode(0o644))
	case args[0] == "fits" && params["op"] == "xyout":
		img := fitsimage.New(fitsimage.NewHeader(
			fitsio.Card{Name: "NAXIS", Value: 4},
			fitsio.Card{Name: "CTYPE3", Value: "FREQ"},
			fitsio.Card{Name: "CDELT3", Value: 2.0e9},
		), 4, 4)
		for i := range img.Data {
			img.Data[i] = 0.5
		}
		return fitsimage.Write(out, img)
	default:
		return os.Mkdir(out, os.FileMode(0o755))
	}
}
