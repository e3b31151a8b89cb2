package scape

import (
	"context"
	"errors"
	"fmt"
	"math"

	"coevolve/internal/fitness"
	"coevolve/internal/model"
	"coevolve/internal/nn"
)

const (
	proximitySensors = 8
	floorSensors     = 3
	floorBlack       = 200.0
	floorWhite       = 800.0
	floorThreshold   = 300.0
	floorReward      = 10.0
	floorRange       = 1000.0
)

// proximityAngles are the headings of the IR sensors relative to the robot.
var proximityAngles = [proximitySensors]float64{
	0.30, 0.80, 1.57, 2.64, -2.64, -1.57, -0.80, -0.30,
}

// ArenaConfig describes a square arena with a straight black line and a
// differential-drive robot.
type ArenaConfig struct {
	Size        float64 `json:"size" yaml:"size" ini:"size"`
	LineX       float64 `json:"line_x" yaml:"line_x" ini:"line_x"`
	LineWidth   float64 `json:"line_width" yaml:"line_width" ini:"line_width"`
	TickMillis  int     `json:"tick_ms" yaml:"tick_ms" ini:"tick_ms"`
	TrialMillis int     `json:"trial_ms" yaml:"trial_ms" ini:"trial_ms"`
	// SpeedRange scales network outputs in [-1, 1] to wheel speed.
	SpeedRange float64 `json:"speed_range" yaml:"speed_range" ini:"speed_range"`
	// MetersPerSpeed converts wheel speed units to meters per second.
	MetersPerSpeed float64 `json:"meters_per_speed" yaml:"meters_per_speed" ini:"meters_per_speed"`
	Axle           float64 `json:"axle" yaml:"axle" ini:"axle"`
	RobotRadius    float64 `json:"robot_radius" yaml:"robot_radius" ini:"robot_radius"`
	SensorRange    float64 `json:"sensor_range" yaml:"sensor_range" ini:"sensor_range"`
}

func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{
		Size:           1.0,
		LineX:          0.5,
		LineWidth:      0.04,
		TickMillis:     128,
		TrialMillis:    60000,
		SpeedRange:     500,
		MetersPerSpeed: 0.000128,
		Axle:           0.053,
		RobotRadius:    0.035,
		SensorRange:    0.1,
	}
}

func (c ArenaConfig) Validate() error {
	if c.Size <= 0 || c.TickMillis <= 0 || c.TrialMillis < c.TickMillis {
		return fmt.Errorf("invalid arena timing or size: size=%v tick=%d trial=%d", c.Size, c.TickMillis, c.TrialMillis)
	}
	if c.Axle <= 0 || c.RobotRadius <= 0 || c.RobotRadius*2 >= c.Size || c.SensorRange <= 0 {
		return fmt.Errorf("invalid arena robot geometry")
	}
	return nil
}

// Steps is the number of ticks in one trial.
func (c ArenaConfig) Steps() int {
	return c.TrialMillis / c.TickMillis
}

// SensorInputs is the controller input width the arena provides.
func SensorInputs() int {
	return proximitySensors + floorSensors
}

// Arena is a lightweight kinematic stand-in for the external robot
// simulator. Every trial starts from the same pose, so evaluation is
// deterministic for a given genome and game set.
type Arena struct {
	cfg       ArenaConfig
	shape     nn.Shape
	objective fitness.Objective
}

func NewArena(cfg ArenaConfig, shape nn.Shape, objective fitness.Objective) (*Arena, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.Inputs != SensorInputs() || shape.Outputs != 2 {
		return nil, fmt.Errorf("arena needs %d inputs and 2 outputs, got %d and %d", SensorInputs(), shape.Inputs, shape.Outputs)
	}
	if objective == nil {
		return nil, errors.New("objective is required")
	}
	return &Arena{cfg: cfg, shape: shape, objective: objective}, nil
}

func (a *Arena) Name() string { return "arena" }

func (a *Arena) Config() ArenaConfig { return a.cfg }

type pose struct {
	x, y, heading float64
}

func (a *Arena) Evaluate(ctx context.Context, genes model.Genome, games []model.Genome) ([]float64, error) {
	totals := make([]float64, len(games))
	err := a.RunTrial(ctx, genes, games, func(deltas []float64, _ bool) error {
		for i, d := range deltas {
			totals[i] += d
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (a *Arena) RunTrial(ctx context.Context, genes model.Genome, games []model.Genome, emit StepFunc) error {
	net, err := nn.Decode(a.shape, genes)
	if err != nil {
		return err
	}
	acc := fitness.NewTrialAccumulator(a.objective, games)
	p := pose{x: a.cfg.Size / 2, y: a.cfg.Size / 4, heading: math.Pi / 2}
	dt := float64(a.cfg.TickMillis) / 1000
	steps := a.cfg.Steps()

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ir := a.proximity(p)
		floor := a.floor(p)
		inputs := append(nn.ScaleSlice(ir, fitness.IRRange, 0), nn.ScaleSlice(floor, floorRange, 0)...)
		out, err := net.Activate(inputs)
		if err != nil {
			return err
		}
		left := a.cfg.SpeedRange * nn.Sat(out[0], 1, -1)
		right := a.cfg.SpeedRange * nn.Sat(out[1], 1, -1)

		next := a.move(p, left, right, dt)
		distance := math.Hypot(next.x-p.x, next.y-p.y)
		p = next

		maxIR := 0.0
		for _, v := range ir {
			maxIR = math.Max(maxIR, v)
		}
		reward := 0.0
		if floor[1] < floorThreshold {
			reward = floorReward
		}
		deltas, err := acc.Step(fitness.Sensors{
			SpeedLeft:  left,
			SpeedRight: right,
			MaxIR:      maxIR,
			Floor:      reward,
			Distance:   distance,
		})
		if err != nil {
			return err
		}
		if err := emit(deltas, step == steps-1); err != nil {
			return err
		}
	}
	return nil
}

func (a *Arena) move(p pose, left, right, dt float64) pose {
	vl := left * a.cfg.MetersPerSpeed
	vr := right * a.cfg.MetersPerSpeed
	v := (vl + vr) / 2
	omega := (vr - vl) / a.cfg.Axle

	p.heading = math.Remainder(p.heading+omega*dt, 2*math.Pi)
	p.x += v * math.Cos(p.heading) * dt
	p.y += v * math.Sin(p.heading) * dt

	lo, hi := a.cfg.RobotRadius, a.cfg.Size-a.cfg.RobotRadius
	p.x = nn.Sat(p.x, hi, lo)
	p.y = nn.Sat(p.y, hi, lo)
	return p
}

// proximity returns IR activations in [0, IRRange]: full at contact, zero
// beyond SensorRange from the robot's edge.
func (a *Arena) proximity(p pose) []float64 {
	out := make([]float64, proximitySensors)
	for i, angle := range proximityAngles {
		d := a.wallDistance(p.x, p.y, p.heading+angle) - a.cfg.RobotRadius
		if d < 0 {
			d = 0
		}
		if d < a.cfg.SensorRange {
			out[i] = fitness.IRRange * (1 - d/a.cfg.SensorRange)
		}
	}
	return out
}

// wallDistance casts a ray from (x, y) to the arena boundary.
func (a *Arena) wallDistance(x, y, angle float64) float64 {
	dx, dy := math.Cos(angle), math.Sin(angle)
	best := math.Inf(1)
	if dx > 0 {
		best = math.Min(best, (a.cfg.Size-x)/dx)
	} else if dx < 0 {
		best = math.Min(best, -x/dx)
	}
	if dy > 0 {
		best = math.Min(best, (a.cfg.Size-y)/dy)
	} else if dy < 0 {
		best = math.Min(best, -y/dy)
	}
	return best
}

// floor returns the left, middle and right ground sensor readings.
func (a *Arena) floor(p pose) []float64 {
	out := make([]float64, floorSensors)
	offsets := [floorSensors]float64{0.3, 0, -0.3}
	for i, off := range offsets {
		sx := p.x + a.cfg.RobotRadius*math.Cos(p.heading+off)
		if math.Abs(sx-a.cfg.LineX) <= a.cfg.LineWidth/2 {
			out[i] = floorBlack
		} else {
			out[i] = floorWhite
		}
	}
	return out
}
