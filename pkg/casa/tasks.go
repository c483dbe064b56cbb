package casa

import (
	"github.com/glass-survey/glass-image/pkg/options"
)

// Gaincal derives gain solutions of vis into caltable.
//
// MinSNR is passed only when it is positive. Otherwise the default of gaincal is in effect.
func Gaincal(vis string, caltable string, sc options.CasaSC) Task {
	params := []Param{
		{Name: "vis", Value: vis},
		{Name: "caltable", Value: caltable},
		{Name: "solint", Value: sc.Solint},
		{Name: "calmode", Value: sc.CalMode},
	}
	if 0 < sc.MinSNR {
		params = append(params, Param{Name: "minsnr", Value: sc.MinSNR})
	}
	return Task{Name: "gaincal", Params: params}
}

// Applycal applies caltable to vis, filling its CORRECTED_DATA column.
func Applycal(vis string, caltable string) Task {
	return Task{
		Name: "applycal",
		Params: []Param{
			{Name: "vis", Value: vis},
			{Name: "gaintable", Value: []string{caltable}},
		},
	}
}

// Split copies the corrected column of vis into outputvis, as its DATA column.
func Split(vis string, outputvis string) Task {
	return Task{
		Name: "split",
		Params: []Param{
			{Name: "vis", Value: vis},
			{Name: "outputvis", Value: outputvis},
			{Name: "datacolumn", Value: "corrected"},
		},
	}
}

// Mstransform regrids vis into nspw spectral windows, writing outputvis.
func Mstransform(vis string, outputvis string, nspw int) Task {
	return Task{
		Name: "mstransform",
		Params: []Param{
			{Name: "vis", Value: vis},
			{Name: "outputvis", Value: outputvis},
			{Name: "datacolumn", Value: "data"},
			{Name: "regridms", Value: true},
			{Name: "nspw", Value: nspw},
		},
	}
}

// ImportUVFITS converts a UVFITS file into a measurement set.
func ImportUVFITS(fitsfile string, vis string) Task {
	return Task{
		Name: "importuvfits",
		Params: []Param{
			{Name: "fitsfile", Value: fitsfile},
			{Name: "vis", Value: vis},
		},
	}
}
