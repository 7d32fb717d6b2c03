/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gombd/multibody"
	"github.com/notargets/gombd/params"
	"github.com/notargets/gombd/spatial"
)

// SimulateCmd represents the simulate command
var SimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Integrate a multibody model forward in time",
	Long: `
Reads a YAML model description, builds the multibody tree and advances it
under gravity with a semi-implicit Euler step,

gombd simulate -i model.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		sim := &Simulation{}
		input, _ := cmd.Flags().GetString("input")
		data, err := os.ReadFile(input)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if err = sim.MP.Parse(data); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		sim.MP.Print()
		if dt, _ := cmd.Flags().GetFloat64("dt"); dt > 0 {
			sim.MP.Dt = dt
		}
		if steps, _ := cmd.Flags().GetInt("steps"); steps > 0 {
			sim.MP.Steps = steps
		}
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		if err = sim.Run(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(SimulateCmd)
	SimulateCmd.Flags().StringP("input", "i", "model.yaml", "YAML model description file")
	SimulateCmd.Flags().Float64("dt", 0, "integration step size override")
	SimulateCmd.Flags().Int("steps", 0, "step count override")
	SimulateCmd.Flags().Bool("profile", false, "write a CPU profile for the run")
}

type Simulation struct {
	MP   params.ModelParameters
	Tree *multibody.Tree
}

// BuildTree constructs the multibody tree from the parsed model. Bodies
// appear in the file parent first, matching the tree's construction order.
func (sim *Simulation) BuildTree() error {
	tree := multibody.NewTree()
	index := map[string]int{"ground": 0}
	for _, b := range sim.MP.Bodies {
		jt, err := b.JointType()
		if err != nil {
			return err
		}
		nodeNum, err := tree.AddBody(index[b.Parent],
			massProps(b), frameTransform(b.AttachFrame), frameTransform(b.JointFrame), jt, false)
		if err != nil {
			return fmt.Errorf("body %q: %w", b.Name, err)
		}
		index[b.Name] = nodeNum
	}
	sim.Tree = tree
	return nil
}

// Run advances the model with a semi-implicit Euler step: speeds first
// from the resolved accelerations, then coordinates from the updated
// speeds. Quaternions are renormalized each step.
func (sim *Simulation) Run() (err error) {
	if err = sim.BuildTree(); err != nil {
		return
	}
	tree := sim.Tree
	vars := tree.DefaultModelVars()
	vars.UseEulerAngles = sim.MP.UseEulerAngles
	s := tree.NewState(vars)

	g := spatial.Vec3(sim.MP.Gravity)
	dt := sim.MP.Dt
	jointForces := make([]float64, tree.NU())
	bodyForces := make([]spatial.SpatialVec, tree.NBodies())

	report := sim.MP.Steps / 10
	if report == 0 {
		report = 1
	}
	for step := 0; step <= sim.MP.Steps; step++ {
		if err = tree.RealizeConfiguration(s); err != nil {
			return
		}
		if err = tree.RealizeMotion(s); err != nil {
			return
		}
		if err = tree.RealizeDynamics(s); err != nil {
			return
		}
		for i := 1; i < tree.NBodies(); i++ {
			m := tree.Node(i).Mass()
			mg := g.Scale(m)
			bodyForces[i] = spatial.SpatialVec{Ang: s.CC.CBG[i].Cross(mg), Lin: mg}
		}
		if err = tree.RealizeReaction(s, jointForces, bodyForces); err != nil {
			return
		}
		if step%report == 0 {
			ke, _ := tree.CalcKineticEnergy(s)
			fmt.Printf("step %8d t=%10.5f KE=%14.8f E=%14.8f\n",
				step, float64(step)*dt, ke, ke+sim.potentialEnergy(s))
		}

		u := append([]float64{}, s.U...)
		for k := range u {
			u[k] += dt * s.UDot[k]
		}
		s.SetU(u)
		if err = tree.RealizeMotion(s); err != nil {
			return
		}
		q := append([]float64{}, s.Q...)
		for k := range q {
			q[k] += dt * s.QDot[k]
		}
		s.SetQ(q)
		tree.EnforceQuaternionConstraints(s)
	}
	return nil
}

func (sim *Simulation) potentialEnergy(s *multibody.State) (pe float64) {
	g := spatial.Vec3(sim.MP.Gravity)
	for i := 1; i < sim.Tree.NBodies(); i++ {
		pe -= sim.Tree.Node(i).Mass() * g.Dot(s.CC.COMG[i])
	}
	return
}

func massProps(b params.Body) multibody.MassProperties {
	ix := b.Inertia
	return multibody.MassProperties{
		Mass: b.Mass,
		COM:  spatial.Vec3(b.COM),
		Inertia: spatial.Mat33{
			{ix[0], ix[3], ix[4]},
			{ix[3], ix[1], ix[5]},
			{ix[4], ix[5], ix[2]},
		},
	}
}

func frameTransform(f params.Frame) spatial.Transform {
	return spatial.Transform{
		R: spatial.BodyFixed123(spatial.Vec3(f.Rotation)),
		T: spatial.Vec3(f.Translation),
	}
}
