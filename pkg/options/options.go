package options

import (
	"strconv"
	"time"
)

// WSClean is the parameter set of one imaging invocation.
//
// Values are plain values: copying a WSClean copies every parameter.
type WSClean struct {
	// AbsMem is the memory limit of the imager, in gigabytes.
	AbsMem float64 `yaml:"absmem"`

	// PSFWindow is the window size (in PSF widths) of the local RMS estimation.
	PSFWindow int `yaml:"psfwindow"`

	// Size is the edge length of the square image, in pixels.
	Size int `yaml:"size"`

	// ForceMask is the number of major cycles after which the automatic mask is frozen.
	ForceMask int `yaml:"forcemask"`

	// MaskThresh is the threshold (in local sigma) of automatic masking.
	MaskThresh float64 `yaml:"maskthresh"`

	// AutoThresh is the cleaning stop threshold, in local sigma.
	AutoThresh float64 `yaml:"autothresh"`

	ChannelsOut int     `yaml:"channels_out"`
	MGain       float64 `yaml:"mgain"`

	// FitsMask selects a pre-supplied clean mask instead of automatic masking.
	FitsMask bool `yaml:"fitsmask"`

	NMIter int `yaml:"nmiter"`
	NIter  int `yaml:"niter"`

	// Scale is the angular pixel size, with unit. (example: "0.3asec")
	Scale string `yaml:"scale"`

	// Robust is the Briggs robustness parameter.
	Robust float64 `yaml:"robust"`

	Multiscale bool `yaml:"multiscale"`

	// FitSpectralPol is the order of spectral polynomial fitting.
	//
	// 0 disables fitting.
	FitSpectralPol int `yaml:"fit_spectral_pol"`

	// DataColumn is the dataset column to be imaged.
	DataColumn string `yaml:"data_column"`

	// Round is the self-calibration round which this parameter set is resolved for.
	//
	// This is never read from configuration files.
	Round int `yaml:"-"`
}

// CasaSC is the parameter set of one self-calibration step.
type CasaSC struct {
	// Solint is the solution interval. (example: "60s", "inf")
	Solint string `yaml:"solint"`

	// NSPW is the number of spectral windows the calibrated dataset is regridded to.
	NSPW int `yaml:"nspw"`

	// CalMode is the calibration mode: "p" for phase-only, "ap" for phase and amplitude.
	CalMode string `yaml:"calmode"`

	// MinSNR rejects solutions under this signal-to-noise ratio.
	//
	// 0 accepts every solution.
	MinSNR float64 `yaml:"minsnr"`

	Round int `yaml:"-"`
}

// Round is the resolved parameter set of a round.
type Round struct {
	Index int

	WSClean WSClean

	// CasaSC is nil for round 0, which precedes any calibration.
	CasaSC *CasaSC
}

// Imager is the set of pipeline-wide settings.
type Imager struct {
	// Rounds is the number of rounds, including round 0.
	Rounds int `yaml:"rounds"`

	// CleanUp enables deletion of large intermediate products
	// (dirty images, PSF maps and calibration intermediates).
	CleanUp bool `yaml:"clean_up"`

	// MoveProducts enables relocation of imaging products into round directories.
	MoveProducts bool `yaml:"move_products"`

	// Archive enables tar.gz archiving of finished round directories.
	Archive bool `yaml:"archive"`

	// Settle is the quiet period a product file should have before it is touched.
	Settle time.Duration `yaml:"settle"`

	// SettleTimeout bounds waiting for products to settle.
	SettleTimeout time.Duration `yaml:"settle_timeout"`

	// RoundTimeout bounds each round, calibration and imaging together. Zero means no limit.
	RoundTimeout time.Duration `yaml:"round_timeout"`
}

func DefaultWSClean() WSClean {
	return WSClean{
		AbsMem:      100,
		PSFWindow:   65,
		Size:        7000,
		ForceMask:   10,
		MaskThresh:  5,
		AutoThresh:  0.5,
		ChannelsOut: 8,
		MGain:       0.7,
		FitsMask:    false,
		NMIter:      15,
		NIter:       50000,
		Scale:       "0.3asec",
		Robust:      0.5,
		DataColumn:  "DATA",
	}
}

func DefaultCasaSC() CasaSC {
	return CasaSC{
		Solint:  "60s",
		NSPW:    4,
		CalMode: "p",
	}
}

func DefaultImager() Imager {
	return Imager{
		Rounds:        5,
		CleanUp:       true,
		MoveProducts:  true,
		Settle:        2 * time.Second,
		SettleTimeout: 1 * time.Minute,
	}
}

// Defaults returns the built-in parameter set of the round.
func Defaults(round int) Round {
	ws := DefaultWSClean()
	ws.Round = round
	r := Round{Index: round, WSClean: ws}
	if 0 < round {
		sc := DefaultCasaSC()
		sc.Round = round
		r.CasaSC = &sc
	}
	return r
}

// IsCalibrated reports whether the round follows a self-calibration step.
func (r Round) IsCalibrated() bool {
	return r.CasaSC != nil
}

// Dirname returns the name of the directory where products of the round are placed.
func (r Round) Dirname() string {
	return Dirname(r.Index)
}

// Dirname returns the name of the directory of round products.
//
// It is "no_selfcal" for round 0, and "round_<round>" otherwise.
func Dirname(round int) string {
	if round == 0 {
		return "no_selfcal"
	}
	return "round_" + strconv.Itoa(round)
}

// Caltable returns the name of the calibration solution table derived in the round.
func Caltable(round int) string {
	return "pcal" + strconv.Itoa(round)
}
