package analyzer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/glass-survey/glass-image/pkg/images/analyzer"
	"github.com/glass-survey/glass-image/pkg/utils/try"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	gcr "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	gcrrand "github.com/google/go-containerregistry/pkg/v1/random"
	gcrtarball "github.com/google/go-containerregistry/pkg/v1/tarball"
)

func TestAnalyze(t *testing.T) {
	type When struct {
		images map[string]gcr.Config
	}
	type Then struct {
		configs []analyzer.TaggedConfig
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			imgs := map[gcrname.Reference]gcr.Image{}
			for tag, config := range when.images {
				i := try.To(gcrrand.Image(64, 1)).OrFatal(t)
				cf := try.To(i.ConfigFile()).OrFatal(t)
				cf.Config = config
				cf.OS = "linux"
				cf.Architecture = "amd64"
				ref := try.To(gcrname.NewTag(tag)).OrFatal(t)
				imgs[ref] = try.To(mutate.ConfigFile(i, cf)).OrFatal(t)
			}

			stream := bytes.NewBuffer(nil)
			if err := gcrtarball.MultiRefWrite(imgs, stream); err != nil {
				t.Fatal(err)
			}

			got := try.To(analyzer.Analyze(context.Background(), stream)).OrFatal(t)
			if len(got) != len(then.configs) {
				t.Fatalf("configs: %+v", got)
			}
			for i := range got {
				if !got[i].Equal(then.configs[i]) {
					t.Errorf("config[%d]:\n===actual===\n%+v\n===expected===\n%+v", i, got[i], then.configs[i])
				}
			}
		}
	}

	t.Run("single image", theory(
		When{
			images: map[string]gcr.Config{
				"example.com/wsclean:3.4": {
					Entrypoint: []string{"/bin/sh", "-c"},
					Env:        []string{"PATH=/usr/local/bin:/usr/bin"},
					WorkingDir: "/data",
				},
			},
		},
		Then{
			configs: []analyzer.TaggedConfig{
				{
					Tags: []string{"example.com/wsclean:3.4"},
					Config: analyzer.Config{
						Entrypoint: []string{"/bin/sh", "-c"},
						Env:        []string{"PATH=/usr/local/bin:/usr/bin"},
						WorkingDir: "/data",
					},
					Platform: "linux/amd64",
				},
			},
		},
	))

	t.Run("multiple images are ordered by tag", theory(
		When{
			images: map[string]gcr.Config{
				"example.com/wsclean:3.4": {Cmd: []string{"wsclean"}},
				"example.com/casa:6.6":    {Cmd: []string{"python3"}},
			},
		},
		Then{
			configs: []analyzer.TaggedConfig{
				{
					Tags:     []string{"example.com/casa:6.6"},
					Config:   analyzer.Config{Cmd: []string{"python3"}},
					Platform: "linux/amd64",
				},
				{
					Tags:     []string{"example.com/wsclean:3.4"},
					Config:   analyzer.Config{Cmd: []string{"wsclean"}},
					Platform: "linux/amd64",
				},
			},
		},
	))

	t.Run("canceled context stops analysis", func(t *testing.T) {
		i := try.To(gcrrand.Image(64, 1)).OrFatal(t)
		stream := bytes.NewBuffer(nil)
		if err := gcrtarball.Write(try.To(gcrname.NewTag("example.com/x:1")).OrFatal(t), i, stream); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := analyzer.Analyze(ctx, stream); err == nil {
			t.Error("no error")
		}
	})
}
