package operators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
)

// SmoothingMethod selects the implementation behind OpSmoothingChooser.
type SmoothingMethod uint8

const (
	Gaussian SmoothingMethod = iota
	Guided
	OpenGM
)

var methodNames = map[SmoothingMethod]string{
	Gaussian: "gaussian",
	Guided:   "guided",
	OpenGM:   "opengm",
}

func (m SmoothingMethod) String() string {
	if name, found := methodNames[m]; found {
		return name
	}
	return fmt.Sprintf("smoothing method %d", uint8(m))
}

// Supported returns true if the method has an implementation.
func (m SmoothingMethod) Supported() bool {
	return m == Gaussian
}

// ParseSmoothingMethod returns the method with the given name.
func ParseSmoothingMethod(s string) (SmoothingMethod, error) {
	for m, name := range methodNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, dvid.ConfigErrorf("unknown smoothing method %q", s)
}

// Configuration schemas of each method.
var methodSchemas = map[SmoothingMethod]*jsonschema.Schema{
	Gaussian: jsonschema.MustCompileString("gaussian.json", `{
		"type": "object",
		"required": ["sigma"],
		"properties": {
			"sigma": {"type": "number", "minimum": 0}
		}
	}`),
	Guided: jsonschema.MustCompileString("guided.json", `{
		"type": "object",
		"required": ["radius", "epsilon"],
		"properties": {
			"radius": {"type": "integer", "minimum": 1},
			"epsilon": {"type": "number", "exclusiveMinimum": 0}
		}
	}`),
	OpenGM: jsonschema.MustCompileString("opengm.json", `{
		"type": "object",
		"required": ["unaries", "pairwise"],
		"properties": {
			"unaries": {"type": "number"},
			"pairwise": {"type": "number"}
		}
	}`),
}

// smoother is the capability shared by smoothing implementations.
type smoother interface {
	graph.Operator
	input() *graph.InputSlot
	output() *graph.OutputSlot
	configure(conf map[string]interface{}) error
}

func (op *OpCostVolumeFilter) input() *graph.InputSlot { return op.Input }
func (op *OpCostVolumeFilter) output() *graph.OutputSlot { return op.Output }

func (op *OpCostVolumeFilter) configure(conf map[string]interface{}) error {
	sigma, ok := toFloat(conf["sigma"])
	if !ok {
		return dvid.ConfigErrorf("gaussian smoothing needs a numeric sigma, got %v", conf["sigma"])
	}
	return setValue(op.Sigma, sigma)
}

// OpSmoothingChooser smooths probability maps with the implementation selected by
// Method, configured by the Configuration map.  Implementations are created when
// first selected and kept for later reselection.
type OpSmoothingChooser struct {
	graph.Base
	Input         *graph.InputSlot
	Method        *graph.InputSlot
	Configuration *graph.InputSlot
	Output        *graph.OutputSlot

	impls map[SmoothingMethod]smoother
}

func NewOpSmoothingChooser(g *graph.Graph, name string) *OpSmoothingChooser {
	op := &OpSmoothingChooser{impls: make(map[SmoothingMethod]smoother)}
	op.Init(g, op, name)
	op.Input = op.AddInput("Input")
	op.Method = op.AddValueInput("Method", Gaussian)
	op.Configuration = op.AddValueInput("Configuration", map[string]interface{}{"sigma": 1.2})
	op.Output = op.AddOutput("Output")
	return op
}

func (op *OpSmoothingChooser) method() (SmoothingMethod, error) {
	switch v := op.Method.Value().(type) {
	case SmoothingMethod:
		return v, nil
	case string:
		return ParseSmoothingMethod(v)
	default:
		return 0, dvid.ConfigErrorf("smoothing method of %q is a %T", op.Name(), v)
	}
}

// configuration returns the Configuration after validating it against the schema of
// the method.
func (op *OpSmoothingChooser) configuration(method SmoothingMethod) (map[string]interface{}, error) {
	raw, err := json.Marshal(op.Configuration.Value())
	if err != nil {
		return nil, dvid.ConfigErrorf("bad configuration for %s smoothing: %v", method, err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, dvid.ConfigErrorf("bad configuration for %s smoothing: %v", method, err)
	}
	if err := methodSchemas[method].Validate(doc); err != nil {
		return nil, dvid.ConfigErrorf("invalid configuration for %s smoothing: %v", method, err)
	}
	conf, ok := doc.(map[string]interface{})
	if !ok {
		return nil, dvid.ConfigErrorf("configuration for %s smoothing is not an object", method)
	}
	return conf, nil
}

func (op *OpSmoothingChooser) newImpl(method SmoothingMethod) smoother {
	name := fmt.Sprintf("%s.%s", op.Name(), method)
	switch method {
	case Gaussian:
		return NewOpCostVolumeFilter(op.Graph(), name)
	default:
		return nil
	}
}

func (op *OpSmoothingChooser) SetupOutputs() error {
	method, err := op.method()
	if err != nil {
		return err
	}
	if !method.Supported() {
		if err := op.Output.Forward(nil); err != nil {
			return err
		}
		return dvid.ConfigErrorf("smoothing method %s is not supported", method)
	}
	conf, err := op.configuration(method)
	if err != nil {
		op.Output.Forward(nil)
		return err
	}
	impl, found := op.impls[method]
	if !found {
		impl = op.newImpl(method)
		op.impls[method] = impl
		dvid.Debugf("Created %s smoothing for %q\n", method, op.Name())
	}
	if !impl.input().Connected() {
		if err := impl.input().ConnectInput(op.Input); err != nil {
			return err
		}
	}
	if err := impl.configure(conf); err != nil {
		return err
	}
	return op.Output.Forward(impl.output())
}

// Impl returns the current implementation or nil if none is selected.
func (op *OpSmoothingChooser) Impl() graph.Operator {
	method, err := op.method()
	if err != nil {
		return nil
	}
	if impl, found := op.impls[method]; found {
		return impl
	}
	return nil
}

func (op *OpSmoothingChooser) Execute(ctx context.Context, out *graph.OutputSlot, roi dvid.Roi, result *dvid.Array) error {
	return dvid.ConfigErrorf("output %s of %q is forwarded", out.Name(), op.Name())
}

func (op *OpSmoothingChooser) PropagateDirty(in *graph.InputSlot, roi dvid.Roi) {}
