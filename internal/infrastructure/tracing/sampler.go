package tracing

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// SamplingParameters carries what a sampler may look at
type SamplingParameters struct {
	Parent  *TraceContext // nil for a new root
	TraceID TraceID
	Name    string
}

// Sampler decides whether a trace entering this process is exported
type Sampler interface {
	ShouldSample(p SamplingParameters) bool
	Description() string
}

type alwaysOn struct{}

// AlwaysOn samples every trace
func AlwaysOn() Sampler { return alwaysOn{} }

func (alwaysOn) ShouldSample(SamplingParameters) bool { return true }
func (alwaysOn) Description() string                  { return "AlwaysOn" }

type alwaysOff struct{}

// AlwaysOff samples nothing
func AlwaysOff() Sampler { return alwaysOff{} }

func (alwaysOff) ShouldSample(SamplingParameters) bool { return false }
func (alwaysOff) Description() string                  { return "AlwaysOff" }

type traceIDRatio struct {
	upperBound  uint64
	description string
}

// TraceIDRatio samples a deterministic fraction of trace ids so that every
// process seeing the same trace reaches the same answer.
func TraceIDRatio(fraction float64) Sampler {
	if fraction >= 1 {
		return AlwaysOn()
	}
	if fraction <= 0 {
		fraction = 0
	}
	return traceIDRatio{
		upperBound:  uint64(fraction * (1 << 63)),
		description: fmt.Sprintf("TraceIDRatio{%g}", fraction),
	}
}

func (s traceIDRatio) ShouldSample(p SamplingParameters) bool {
	x := binary.BigEndian.Uint64(p.TraceID[8:16]) >> 1
	return x < s.upperBound
}

func (s traceIDRatio) Description() string { return s.description }

type parentBased struct {
	root Sampler
}

// ParentBased honors the decision carried by a parent and defers to root
// when there is none.
func ParentBased(root Sampler) Sampler {
	return parentBased{root: root}
}

func (s parentBased) ShouldSample(p SamplingParameters) bool {
	if p.Parent != nil && p.Parent.IsValid() {
		return p.Parent.Sampled
	}
	return s.root.ShouldSample(p)
}

func (s parentBased) Description() string {
	return "ParentBased{root:" + s.root.Description() + "}"
}

// Sampler selector names
const (
	SamplerAlwaysOn                = "always_on"
	SamplerAlwaysOff               = "always_off"
	SamplerTraceIDRatio            = "traceidratio"
	SamplerParentBasedAlwaysOn     = "parentbased_always_on"
	SamplerParentBasedAlwaysOff    = "parentbased_always_off"
	SamplerParentBasedTraceIDRatio = "parentbased_traceidratio"
)

// SamplerFromName builds a sampler from its selector name. arg is the ratio
// for the traceidratio variants and is ignored otherwise.
func SamplerFromName(name, arg string) (Sampler, error) {
	ratio := func() (float64, error) {
		if arg == "" {
			return 1, nil
		}
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || f < 0 || f > 1 {
			return 0, fmt.Errorf("sampler argument %q is not a ratio in [0,1]", arg)
		}
		return f, nil
	}

	switch name {
	case SamplerAlwaysOn:
		return AlwaysOn(), nil
	case SamplerAlwaysOff:
		return AlwaysOff(), nil
	case SamplerTraceIDRatio:
		f, err := ratio()
		if err != nil {
			return nil, err
		}
		return TraceIDRatio(f), nil
	case SamplerParentBasedAlwaysOn, "":
		return ParentBased(AlwaysOn()), nil
	case SamplerParentBasedAlwaysOff:
		return ParentBased(AlwaysOff()), nil
	case SamplerParentBasedTraceIDRatio:
		f, err := ratio()
		if err != nil {
			return nil, err
		}
		return ParentBased(TraceIDRatio(f)), nil
	default:
		return nil, fmt.Errorf("unknown sampler %q", name)
	}
}
