package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"

	"go.viam.com/motionsampling/approximation"
	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/logging"
	"go.viam.com/motionsampling/planningcontext"
	"go.viam.com/motionsampling/referenceframe"
)

func loggerFor(c *cli.Context) logging.Logger {
	if c.Bool(flagDebug) {
		return logging.NewDebugLogger("approx")
	}
	return logging.NewLogger("approx")
}

// readConstraints parses a JSON5 constraint set file, so files may carry comments and trailing commas.
func readConstraints(path string) (*constraints.ConstraintSet, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cs := &constraints.ConstraintSet{}
	if err := json5.Unmarshal(data, cs); err != nil {
		return nil, errors.Wrapf(err, "parsing constraints in %s", path)
	}
	if cs.Empty() {
		return nil, errors.Errorf("%s holds no constraints", path)
	}
	return cs, nil
}

// EncodeAction prints the uppercase hex descriptor of a constraint set.
func EncodeAction(c *cli.Context) error {
	cs, err := readConstraints(c.String(flagConstraints))
	if err != nil {
		return err
	}
	strategy := c.String(flagStrategy)
	if strategy == "" {
		if strategy, err = constraintsampler.Strategy(cs); err != nil {
			return err
		}
	}
	d, err := constraints.NewDescriptor(cs, c.String(flagGroup), strategy)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, d.Hex())
	return nil
}

// DecodeAction prints the contents of a hex descriptor as JSON.
func DecodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("decode takes exactly one descriptor")
	}
	d, err := constraints.DescriptorFromHex(c.Args().First())
	if err != nil {
		return err
	}
	decoded, err := d.Decode()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		Group       string                     `json:"group"`
		Strategy    string                     `json:"strategy"`
		Constraints *constraints.ConstraintSet `json:"constraints"`
	}{decoded.Group, decoded.Strategy, decoded.Constraints}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

// SchemaAction prints the JSON schema of constraint set files or of planner options.
func SchemaAction(c *cli.Context) error {
	var schema *jsonschema.Schema
	switch c.Args().First() {
	case "constraints":
		schema = jsonschema.Reflect(&constraints.ConstraintSet{})
	case "options":
		schema = jsonschema.Reflect(&planningcontext.PlannerOptions{})
	default:
		return errors.Errorf("unknown schema %q, want constraints or options", c.Args().First())
	}
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

// InspectAction lists the approximations stored in a directory.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("inspect takes exactly one directory")
	}
	cache := approximation.NewCache(loggerFor(c))
	n, err := cache.Load(c.Args().First())
	if n == 0 && err != nil {
		return err
	}
	for _, ca := range cache.Entries() {
		fmt.Fprintf(c.App.Writer, "%s\tgroup=%q\tstrategy=%s\tdim=%d\tstates=%d\n",
			ca.Filename(), ca.Group(), ca.Strategy(), ca.Dim(), ca.Len())
		if c.Bool(flagStats) {
			if err := summarize(c.App.Writer, ca); err != nil {
				return err
			}
		}
	}
	if err != nil {
		fmt.Fprintf(c.App.ErrWriter, "some entries were skipped: %v\n", err)
	}
	return nil
}

// BuildAction populates an approximation for a constraint set and saves the directory's cache.
func BuildAction(c *cli.Context) error {
	logger := loggerFor(c)
	model, err := referenceframe.ParseModelJSONFile(c.String(flagModel), "")
	if err != nil {
		return err
	}
	cs, err := readConstraints(c.String(flagConstraints))
	if err != nil {
		return err
	}
	dir := c.String(flagDir)
	opts := planningcontext.NewBasicPlannerOptions()
	opts.RandomSeed = c.Int(flagSeed)
	if _, err := os.Stat(dir); err == nil {
		opts.ApproximationsDir = dir
	}
	cache := approximation.NewCache(logger)
	pc, err := planningcontext.NewPlanningContext(c.Context, logger, &planningcontext.PlanRequest{
		Model:           model,
		Group:           c.String(flagGroup),
		GoalConstraints: cs,
		Cache:           cache,
		PlannerOptions:  opts,
	})
	if err != nil {
		return err
	}
	defer pc.Close()

	ca, err := pc.Approximate(c.Context, cs, approximation.BuildOptions{
		Samples:           c.Int(flagSamples),
		Attempts:          c.Int(flagAttempts),
		AttemptsPerSample: c.Int(flagPerSample),
	})
	if err != nil {
		return err
	}
	if err := cache.Save(dir); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\t%d states\t%s\n", ca.Filename(), ca.Len(), ca.Descriptor().Hex())
	return nil
}

// summarize prints the spread of each state dimension of ca.
func summarize(w io.Writer, ca *approximation.ConstraintApproximation) error {
	states := ca.States()
	if len(states) == 0 {
		return nil
	}
	for d := 0; d < ca.Dim(); d++ {
		col := make(stats.Float64Data, len(states))
		for i, s := range states {
			col[i] = s[d]
		}
		mean, err := col.Mean()
		sd, err2 := col.StandardDeviation()
		lo, err3 := col.Min()
		hi, err4 := col.Max()
		if err := multierr.Combine(err, err2, err3, err4); err != nil {
			return err
		}
		fmt.Fprintf(w, "\t[%d]\tmean=%.4f\tsd=%.4f\tmin=%.4f\tmax=%.4f\n", d, mean, sd, lo, hi)
	}
	return nil
}
