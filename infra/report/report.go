package report

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"lockfree/infra/memory"
)

// Report is the outcome of one stress run.
type Report struct {
	ID        uint64
	Container string
	Workers   int
	Ops       int
	PushRatio float64
	Seed      uint64
	Exact     bool

	Pushed    uint64
	Popped    uint64
	Drained   uint64
	EmptyPops uint64

	Duplicates uint64
	Unknown    uint64

	PushedFingerprint   uint64
	ConsumedFingerprint uint64

	StartedAt time.Time
	Elapsed   time.Duration

	Collector memory.Stats
}

// OK reports whether every pushed value was consumed exactly once.
func (r Report) OK() bool {
	return r.Pushed == r.Popped+r.Drained &&
		r.PushedFingerprint == r.ConsumedFingerprint &&
		r.Duplicates == 0 &&
		r.Unknown == 0
}

// OpsPerSecond is the throughput of the concurrent phase.
func (r Report) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Workers*r.Ops) / r.Elapsed.Seconds()
}

// Fingerprints and the id are carried as strings: structpb numbers are
// doubles and would lose low bits.
func (r Report) Proto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":                   strconv.FormatUint(r.ID, 10),
		"container":            r.Container,
		"workers":              r.Workers,
		"ops_per_worker":       r.Ops,
		"push_ratio":           r.PushRatio,
		"seed":                 strconv.FormatUint(r.Seed, 10),
		"exact":                r.Exact,
		"pushed":               r.Pushed,
		"popped":               r.Popped,
		"drained":              r.Drained,
		"empty_pops":           r.EmptyPops,
		"duplicates":           r.Duplicates,
		"unknown":              r.Unknown,
		"pushed_fingerprint":   strconv.FormatUint(r.PushedFingerprint, 16),
		"consumed_fingerprint": strconv.FormatUint(r.ConsumedFingerprint, 16),
		"started_at":           r.StartedAt.UTC().Format(time.RFC3339Nano),
		"elapsed_ns":           strconv.FormatInt(int64(r.Elapsed), 10),
		"ops_per_second":       r.OpsPerSecond(),
		"ok":                   r.OK(),
		"collector": map[string]any{
			"epoch":        r.Collector.Epoch,
			"participants": r.Collector.Participants,
			"retired":      r.Collector.Retired,
			"reclaimed":    r.Collector.Reclaimed,
			"spilled":      r.Collector.Spilled,
		},
	})
}

func FromProto(s *structpb.Struct) (Report, error) {
	f := s.GetFields()
	num := func(k string) uint64 { return uint64(f[k].GetNumberValue()) }
	var (
		r   Report
		err error
	)
	parse := func(k string, base int) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = strconv.ParseUint(f[k].GetStringValue(), base, 64)
		if err != nil {
			err = errors.Wrapf(err, "field %s", k)
		}
		return v
	}

	r.ID = parse("id", 10)
	r.Seed = parse("seed", 10)
	r.PushedFingerprint = parse("pushed_fingerprint", 16)
	r.ConsumedFingerprint = parse("consumed_fingerprint", 16)
	r.Elapsed = time.Duration(parse("elapsed_ns", 10))
	if err != nil {
		return Report{}, err
	}

	r.Container = f["container"].GetStringValue()
	r.Workers = int(num("workers"))
	r.Ops = int(num("ops_per_worker"))
	r.PushRatio = f["push_ratio"].GetNumberValue()
	r.Exact = f["exact"].GetBoolValue()
	r.Pushed = num("pushed")
	r.Popped = num("popped")
	r.Drained = num("drained")
	r.EmptyPops = num("empty_pops")
	r.Duplicates = num("duplicates")
	r.Unknown = num("unknown")

	if r.StartedAt, err = time.Parse(time.RFC3339Nano, f["started_at"].GetStringValue()); err != nil {
		return Report{}, errors.Wrap(err, "field started_at")
	}

	c := f["collector"].GetStructValue().GetFields()
	r.Collector = memory.Stats{
		Epoch:        uint64(c["epoch"].GetNumberValue()),
		Participants: uint64(c["participants"].GetNumberValue()),
		Retired:      uint64(c["retired"].GetNumberValue()),
		Reclaimed:    uint64(c["reclaimed"].GetNumberValue()),
		Spilled:      uint64(c["spilled"].GetNumberValue()),
	}
	return r, nil
}

// Marshal encodes r in protobuf wire format for storage.
func (r Report) Marshal() ([]byte, error) {
	s, err := r.Proto()
	if err != nil {
		return nil, errors.Wrap(err, "report to proto")
	}
	return proto.Marshal(s)
}

func Unmarshal(b []byte) (Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Report{}, errors.Wrap(err, "unmarshal report")
	}
	return FromProto(&s)
}

// JSON encodes r for external consumers.
func (r Report) JSON() ([]byte, error) {
	s, err := r.Proto()
	if err != nil {
		return nil, errors.Wrap(err, "report to proto")
	}
	return protojson.Marshal(s)
}
