package approximation

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/protoutils"
)

// ManifestName is the file listing every approximation saved in a directory.
const ManifestName = "manifest.pb"

// header is the first message of every backing file; the states follow it.
type header struct {
	descriptorHex string
	group         string
	strategy      string
	dim           int
	count         int
}

func (h header) toProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"descriptor": h.descriptorHex,
		"group":      h.group,
		"strategy":   h.strategy,
		"dim":        h.dim,
		"count":      h.count,
	})
}

func headerFromProto(s *structpb.Struct) (header, error) {
	f := s.GetFields()
	h := header{
		descriptorHex: f["descriptor"].GetStringValue(),
		group:         f["group"].GetStringValue(),
		strategy:      f["strategy"].GetStringValue(),
		dim:           int(f["dim"].GetNumberValue()),
		count:         int(f["count"].GetNumberValue()),
	}
	if h.descriptorHex == "" || h.dim < 1 || h.count < 0 {
		return header{}, errors.New("incomplete approximation header")
	}
	return h, nil
}

// WriteFile writes ca to path: a header carrying the hex descriptor, group and strategy tag, then the states.
func WriteFile(path string, ca *ConstraintApproximation) (err error) {
	states := ca.States()
	hdr, err := header{
		descriptorHex: ca.Descriptor().Hex(),
		group:         ca.Group(),
		strategy:      ca.Strategy(),
		dim:           ca.Dim(),
		count:         len(states),
	}.toProto()
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	writer := protoutils.NewDelimitedProtoWriter[proto.Message](f)
	defer func() {
		err = multierr.Combine(err, writer.Close())
	}()
	if err := writer.Append(hdr); err != nil {
		return err
	}
	for _, s := range states {
		if err := writer.Append(protoutils.StateToProto(s)); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile reads an approximation written by WriteFile. The descriptor must decode, and its group and
// strategy tag must match the header, or the file is rejected.
func ReadFile(path string) (*ConstraintApproximation, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader := protoutils.NewRawDelimitedProtoReader(f)
	//nolint:errcheck
	defer reader.Close()

	var ca *ConstraintApproximation
	var hdr header
	for msg, err := range reader.All() {
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if ca == nil {
			hdrProto := &structpb.Struct{}
			if err := proto.Unmarshal(msg, hdrProto); err != nil {
				return nil, errors.Wrapf(err, "%s: reading header", path)
			}
			if hdr, err = headerFromProto(hdrProto); err != nil {
				return nil, errors.Wrap(err, path)
			}
			d, err := constraints.DescriptorFromHex(hdr.descriptorHex)
			if err != nil {
				return nil, errors.Wrap(err, path)
			}
			if ca, err = newWithFilename(d, hdr.dim, filepath.Base(path)); err != nil {
				return nil, errors.Wrap(err, path)
			}
			if ca.Group() != hdr.group || ca.Strategy() != hdr.strategy {
				return nil, errors.Errorf("%s: header group/strategy %q/%q does not match descriptor %q/%q",
					path, hdr.group, hdr.strategy, ca.Group(), ca.Strategy())
			}
			continue
		}
		list := &structpb.ListValue{}
		if err := proto.Unmarshal(msg, list); err != nil {
			return nil, errors.Wrapf(err, "%s: reading state %d", path, ca.Len())
		}
		state, err := protoutils.StateFromProto(list)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		if err := ca.Append(state); err != nil {
			return nil, errors.Wrap(err, path)
		}
	}
	if ca == nil {
		return nil, errors.Errorf("%s: empty approximation file", path)
	}
	if ca.Len() != hdr.count {
		return nil, errors.Errorf("%s: header promises %d states, found %d", path, hdr.count, ca.Len())
	}
	return ca, nil
}

// Save writes every published entry to dir, one backing file each, and a manifest naming them.
func (c *Cache) Save(dir string) (err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(filepath.Join(dir, ManifestName))
	if err != nil {
		return err
	}
	manifest := protoutils.NewDelimitedProtoWriter[*structpb.Struct](f)
	defer func() {
		err = multierr.Combine(err, manifest.Close())
	}()
	for _, ca := range c.Entries() {
		if err := WriteFile(filepath.Join(dir, ca.Filename()), ca); err != nil {
			return err
		}
		entry, err := structpb.NewStruct(map[string]interface{}{
			"file":       ca.Filename(),
			"descriptor": ca.Descriptor().Hex(),
		})
		if err != nil {
			return err
		}
		if err := manifest.Append(entry); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the manifest in dir and publishes every entry it lists. An entry that cannot be read, whose
// descriptor is malformed, or whose file disagrees with the manifest is skipped; the skipped entries'
// errors are combined into the returned error. The number of entries published is always returned.
func (c *Cache) Load(dir string) (int, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		return 0, err
	}
	reader := protoutils.NewDelimitedProtoReader[structpb.Struct](f)
	//nolint:errcheck
	defer reader.Close()

	var errAll error
	loaded := 0
	for entry, err := range reader.All() {
		if err != nil {
			errAll = multierr.Append(errAll, errors.Wrap(err, "reading manifest"))
			break
		}
		file := entry.GetFields()["file"].GetStringValue()
		if file == "" || filepath.Base(file) != file {
			errAll = multierr.Append(errAll, errors.Errorf("manifest entry has invalid file name %q", file))
			continue
		}
		ca, err := ReadFile(filepath.Join(dir, file))
		if err != nil {
			errAll = multierr.Append(errAll, err)
			continue
		}
		if ca.Descriptor().Hex() != entry.GetFields()["descriptor"].GetStringValue() {
			errAll = multierr.Append(errAll, errors.Errorf("%s: descriptor does not match the manifest", file))
			continue
		}
		if _, err := c.Store(ca.Descriptor(), ca); err != nil {
			errAll = multierr.Append(errAll, err)
			continue
		}
		loaded++
	}
	if errAll != nil {
		c.logger.Warnw("skipped approximations while loading", "dir", dir, "error", errAll)
	}
	return loaded, errAll
}
