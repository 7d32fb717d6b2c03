package params

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gombd/multibody"
)

// Parameters obtained from the YAML model file
type ModelParameters struct {
	Title          string     `yaml:"Title"`
	Gravity        [3]float64 `yaml:"Gravity"`
	Dt             float64    `yaml:"Dt"`
	Steps          int        `yaml:"Steps"`
	UseEulerAngles bool       `yaml:"UseEulerAngles"`
	Bodies         []Body     `yaml:"Bodies"`
}

// Body is one tree node in the model file. Parent names an earlier body,
// or "ground". Inertia is (Ixx, Iyy, Izz, Ixy, Ixz, Iyz) about the body
// origin in the body frame. The two frames use body-fixed 1-2-3 angles in
// radians.
type Body struct {
	Name        string     `yaml:"Name"`
	Parent      string     `yaml:"Parent"`
	Joint       string     `yaml:"Joint"`
	Mass        float64    `yaml:"Mass"`
	COM         [3]float64 `yaml:"COM"`
	Inertia     [6]float64 `yaml:"Inertia"`
	AttachFrame Frame      `yaml:"AttachFrame"`
	JointFrame  Frame      `yaml:"JointFrame"`
}

type Frame struct {
	Rotation    [3]float64 `yaml:"Rotation"`
	Translation [3]float64 `yaml:"Translation"`
}

func (mp *ModelParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, mp); err != nil {
		return err
	}
	return mp.validate()
}

func (mp *ModelParameters) validate() error {
	seen := map[string]bool{"ground": true}
	for i, b := range mp.Bodies {
		if b.Name == "" {
			return fmt.Errorf("body %d has no name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate body name %q", b.Name)
		}
		if !seen[b.Parent] {
			return fmt.Errorf("body %q: parent %q not defined before it", b.Name, b.Parent)
		}
		if _, err := b.JointType(); err != nil {
			return fmt.Errorf("body %q: %v", b.Name, err)
		}
		seen[b.Name] = true
	}
	return nil
}

// JointType maps the model-file joint name to the tree's joint tag.
func (b Body) JointType() (multibody.JointType, error) {
	switch strings.ToLower(b.Joint) {
	case "torsion", "pin":
		return multibody.Torsion, nil
	case "sliding", "slider":
		return multibody.Sliding, nil
	case "universal":
		return multibody.Universal, nil
	case "orientation", "ball":
		return multibody.Orientation, nil
	case "cartesian":
		return multibody.Cartesian, nil
	case "freeline":
		return multibody.FreeLine, nil
	case "free":
		return multibody.Free, nil
	}
	return 0, fmt.Errorf("unknown joint name %q", b.Joint)
}

func (mp *ModelParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", mp.Title)
	fmt.Printf("%8.5f\t= Gravity\n", mp.Gravity)
	fmt.Printf("%8.5f\t\t= Dt\n", mp.Dt)
	fmt.Printf("[%d]\t\t\t= Steps\n", mp.Steps)
	fmt.Printf("[%v]\t\t= UseEulerAngles\n", mp.UseEulerAngles)
	for _, b := range mp.Bodies {
		fmt.Printf("Body[%s] parent=%s joint=%s mass=%g\n", b.Name, b.Parent, b.Joint, b.Mass)
	}
}
