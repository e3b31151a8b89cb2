package nn

import (
	"fmt"

	"coevolve/internal/model"
)

// Shape describes a fully connected controller. Hidden == 0 connects inputs
// straight to outputs.
type Shape struct {
	Inputs     int    `json:"inputs" yaml:"inputs" ini:"inputs"`
	Hidden     int    `json:"hidden" yaml:"hidden" ini:"hidden"`
	Outputs    int    `json:"outputs" yaml:"outputs" ini:"outputs"`
	Activation string `json:"activation" yaml:"activation" ini:"activation"`
}

func (s Shape) Validate() error {
	if s.Inputs <= 0 || s.Outputs <= 0 || s.Hidden < 0 {
		return fmt.Errorf("invalid network shape: inputs=%d hidden=%d outputs=%d", s.Inputs, s.Hidden, s.Outputs)
	}
	if _, err := GetActivation(s.activation()); err != nil {
		return err
	}
	return nil
}

func (s Shape) activation() string {
	if s.Activation == "" {
		return "tanh"
	}
	return s.Activation
}

// GeneCount is the number of weights and biases a genome must carry.
func (s Shape) GeneCount() int {
	if s.Hidden == 0 {
		return s.Inputs*s.Outputs + s.Outputs
	}
	return s.Inputs*s.Hidden + s.Hidden + s.Hidden*s.Outputs + s.Outputs
}

type layer struct {
	in, out int
	weights []float64
	biases  []float64
}

// Network is a feed-forward controller decoded from a flat genome. Genes
// are laid out per layer as row-major weights followed by biases.
type Network struct {
	shape  Shape
	act    ActivationFunc
	layers []layer
}

func Decode(shape Shape, genome model.Genome) (*Network, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(genome) != shape.GeneCount() {
		return nil, fmt.Errorf("genome has %d genes, shape needs %d", len(genome), shape.GeneCount())
	}
	act, err := GetActivation(shape.activation())
	if err != nil {
		return nil, err
	}

	sizes := []int{shape.Inputs}
	if shape.Hidden > 0 {
		sizes = append(sizes, shape.Hidden)
	}
	sizes = append(sizes, shape.Outputs)

	n := &Network{shape: shape, act: act}
	offset := 0
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		l := layer{in: in, out: out}
		l.weights = append([]float64(nil), genome[offset:offset+in*out]...)
		offset += in * out
		l.biases = append([]float64(nil), genome[offset:offset+out]...)
		offset += out
		n.layers = append(n.layers, l)
	}
	return n, nil
}

func (n *Network) Shape() Shape { return n.shape }

// Activate propagates inputs through every layer.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != n.shape.Inputs {
		return nil, fmt.Errorf("got %d inputs, network takes %d", len(inputs), n.shape.Inputs)
	}
	values := inputs
	for _, l := range n.layers {
		next := make([]float64, l.out)
		for o := 0; o < l.out; o++ {
			sum := l.biases[o]
			row := l.weights[o*l.in : (o+1)*l.in]
			for i, v := range values {
				sum += v * row[i]
			}
			next[o] = n.act(sum)
		}
		values = next
	}
	return values, nil
}
