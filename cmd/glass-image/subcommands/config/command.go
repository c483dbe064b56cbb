package config

import (
	config_show "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/config/show"
	config_verify "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/config/verify"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	show, err := config_show.New()
	if err != nil {
		return nil, err
	}
	verify, err := config_verify.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Inspect configuration files.",
		struct{}{},
		flarc.WithSubcommand("show", show),
		flarc.WithSubcommand("verify", verify),
	)
}
