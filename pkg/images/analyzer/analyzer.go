// Package analyzer reads image configurations out of docker-archive tarballs.
package analyzer

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sort"
)

type TaggedConfig struct {
	Tags   []string
	Config Config

	// Platform is "<os>/<architecture>".
	Platform string
}

func (tc TaggedConfig) Equal(o TaggedConfig) bool {
	return slices.Equal(tc.Tags, o.Tags) && tc.Config.Equal(o.Config) && tc.Platform == o.Platform
}

// HasTag reports whether tc is tagged with tag.
func (tc TaggedConfig) HasTag(tag string) bool {
	return slices.Contains(tc.Tags, tag)
}

type peekReader struct {
	peeking bool
	r       io.Reader
	head    byte
}

func (pr *peekReader) Read(p []byte) (n int, err error) {
	if pr.peeking {
		p[0] = pr.head
		pr.peeking = false
		return 1, nil
	}
	return pr.r.Read(p)
}

func (pr *peekReader) Peek() (byte, error) {
	if pr.peeking {
		return pr.head, nil
	}
	var b [1]byte
	n, err := pr.r.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	pr.peeking = true
	pr.head = b[0]
	return pr.head, nil
}

// Analyze reads a docker-archive tar stream and returns found configurations (with its tags, if any).
//
// Results are ordered by their first tag. Untagged ones come first.
func Analyze(ctx context.Context, stream io.Reader) ([]TaggedConfig, error) {
	images := map[string]Image{}
	manifests := []DockerManifest{}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if hdr.Name == "manifest.json" {
			if err := json.NewDecoder(tr).Decode(&manifests); err != nil {
				return nil, err
			}
			continue
		}

		// config files are not always in "blobs/", so every JSON file is sniffed.
		if hdr.FileInfo().IsDir() || hdr.Size == 0 {
			continue
		}
		r := &peekReader{r: tr}
		p, err := r.Peek()
		if err != nil {
			return nil, err
		}
		if p != '{' {
			continue
		}
		var img Image
		if err := json.NewDecoder(r).Decode(&img); err != nil {
			if juterr := new(json.UnmarshalTypeError); errors.As(err, &juterr) {
				continue
			}
			if jsynerr := new(json.SyntaxError); errors.As(err, &jsynerr) {
				continue
			}
			return nil, err
		}
		if img.IsValid() {
			images[hdr.Name] = img
		}
	}

	tagged := map[string]*TaggedConfig{}
	for name, img := range images {
		tagged[name] = &TaggedConfig{
			Tags:     []string{},
			Config:   img.Config,
			Platform: *img.Os + "/" + *img.Architecture,
		}
	}
	for _, manifest := range manifests {
		tc, ok := tagged[manifest.Config]
		if !ok {
			continue
		}
		tc.Tags = append(tc.Tags, manifest.RepoTags...)
	}

	result := make([]TaggedConfig, 0, len(tagged))
	for _, tc := range tagged {
		result = append(result, *tc)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return firstTag(result[i]) < firstTag(result[j])
	})
	return result, nil
}

func firstTag(tc TaggedConfig) string {
	if len(tc.Tags) == 0 {
		return ""
	}
	return tc.Tags[0]
}
