package wsclean

import (
	"fmt"
)

// Kind of an imaging product.
type Kind string

const (
	Dirty    Kind = "dirty"
	PSF      Kind = "psf"
	Residual Kind = "residual"
	Image    Kind = "image"
	Model    Kind = "model"
)

// Kinds lists all kinds of products, in the order of Products.
var Kinds = []Kind{Dirty, PSF, Residual, Image, Model}

// MFS is the channel tag of multi-frequency synthesis products.
const MFS = "MFS"

// Product is a file written by wsclean.
type Product struct {
	Kind Kind

	// Channel is "0000", "0001", ... or MFS. It is empty for single channel imaging.
	Channel string

	// Name is the file name, relative to the working directory.
	Name string
}

// Intermediate reports whether the product is a large byproduct which may be deleted.
func (p Product) Intermediate() bool {
	return p.Kind == Dirty || p.Kind == PSF
}

// Products enumerates files which c writes.
//
// Files are ordered by channel (MFS last), then by kind in the order of Kinds.
func (c Command) Products() []Product {
	return Products(c.Stem, c.ChannelsOut)
}

// Products enumerates files of imaging with the stem and the number of channels.
func Products(stem string, channelsOut int) []Product {
	if channelsOut <= 1 {
		ps := make([]Product, 0, len(Kinds))
		for _, k := range Kinds {
			ps = append(ps, Product{Kind: k, Name: fmt.Sprintf("%s-%s.fits", stem, k)})
		}
		return ps
	}

	channels := make([]string, 0, channelsOut+1)
	for ch := range channelsOut {
		channels = append(channels, fmt.Sprintf("%04d", ch))
	}
	channels = append(channels, MFS)

	ps := make([]Product, 0, len(channels)*len(Kinds))
	for _, ch := range channels {
		for _, k := range Kinds {
			ps = append(ps, Product{
				Kind:    k,
				Channel: ch,
				Name:    fmt.Sprintf("%s-%s-%s.fits", stem, ch, k),
			})
		}
	}
	return ps
}

// Find returns the first product of the kind and the channel.
func Find(products []Product, kind Kind, channel string) (Product, bool) {
	for _, p := range products {
		if p.Kind == kind && p.Channel == channel {
			return p, true
		}
	}
	return Product{}, false
}
