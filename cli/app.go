// Package cli contains the approx command line tool, which encodes constraint descriptors and builds and inspects
// stored constraint approximations.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagDebug       = "debug"
	flagConstraints = "constraints"
	flagGroup       = "group"
	flagStrategy    = "strategy"
	flagModel       = "model"
	flagDir         = "dir"
	flagSamples     = "samples"
	flagAttempts    = "attempts"
	flagPerSample   = "attempts-per-sample"
	flagSeed        = "seed"
	flagStats       = "stats"
)

// NewApp returns the approx application writing its output to out.
func NewApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:            "approx",
		Usage:           "work with constraint descriptors and stored constraint approximations",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "encode",
				Usage: "print the hex descriptor of a constraint set",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConstraints,
						Usage:    "read the constraint set from JSON5 `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagGroup,
						Usage: "planning group name",
					},
					&cli.StringFlag{
						Name:  flagStrategy,
						Usage: "sampling strategy tag; derived from the constraints when empty",
					},
				},
				Action: EncodeAction,
			},
			{
				Name:      "decode",
				Usage:     "print the constraint set, group and strategy held by a hex descriptor",
				ArgsUsage: "<descriptor>",
				Action:    DecodeAction,
			},
			{
				Name:      "schema",
				Usage:     "print the JSON schema of constraint set files or planner options",
				ArgsUsage: "constraints|options",
				Action:    SchemaAction,
			},
			{
				Name:      "inspect",
				Usage:     "list the approximations stored in a directory",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagStats,
						Usage: "also print the spread of every state dimension",
					},
				},
				Action: InspectAction,
			},
			{
				Name:  "build",
				Usage: "populate an approximation for a constraint set and store it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagModel,
						Usage:    "read the robot model from JSON `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagConstraints,
						Usage:    "read the constraint set from JSON5 `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagDir,
						Usage:    "directory approximations are loaded from and saved to",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagGroup,
						Usage: "planning group name",
					},
					&cli.IntFlag{
						Name:  flagSamples,
						Value: 1000,
						Usage: "states to collect",
					},
					&cli.IntFlag{
						Name:  flagAttempts,
						Value: 100000,
						Usage: "sampler calls before giving up",
					},
					&cli.IntFlag{
						Name:  flagPerSample,
						Value: 10,
						Usage: "attempt budget of each sampler call",
					},
					&cli.IntFlag{
						Name:  flagSeed,
						Usage: "random seed",
					},
				},
				Action: BuildAction,
			},
		},
	}
}
